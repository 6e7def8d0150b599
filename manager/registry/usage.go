package registry

import (
	"context"
	"math/big"
	"net/netip"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/contractor/addrspace/netmath"
)

// Usage reports how the offsets of a block are used.
type Usage struct {
	// Total is the size of the network, network and broadcast included.
	Total    *big.Int `json:"total"`
	Static   int      `json:"static"`
	Reserved int      `json:"reserved"`
	Dynamic  int      `json:"dynamic"`
}

// BlockUsage counts the records of each kind placed in b. A configured
// gateway counts as reserved.
func BlockUsage(tx store.ReadTx, b *api.AddressBlock) (Usage, error) {
	u := Usage{Total: Size(b)}
	for _, c := range []struct {
		kind  api.AddressKind
		count *int
	}{
		{api.AddressKindAddress, &u.Static},
		{api.AddressKindReserved, &u.Reserved},
		{api.AddressKindDynamic, &u.Dynamic},
	} {
		n, err := store.CountAddresses(tx, store.ByBlockKind(b.ID, c.kind))
		if err != nil {
			return Usage{}, errors.ErrInternal("counting %v records of block %s: %v", c.kind, b.ID, err)
		}
		*c.count = n
	}
	if b.GatewayOffset != nil {
		u.Reserved++
	}
	return u, nil
}

// Usage returns the usage of the block with the given id.
func (r *Registry) Usage(ctx context.Context, id string) (Usage, error) {
	var (
		u   Usage
		err error
	)
	r.store.View(func(tx store.ReadTx) {
		b := store.GetAddressBlock(tx, id)
		if b == nil {
			err = errors.ErrNotFound("address block", id)
			return
		}
		u, err = BlockUsage(tx, b)
	})
	return u, err
}

func parseLookup(ipText string) (addr netip.Addr, err error) {
	x, family, err := netmath.Parse(ipText)
	if err != nil {
		return addr, errors.ErrInvalidField("address", err.Error())
	}
	return netmath.ToAddr(x, family)
}

// Lookup finds the record placed at ipText in any site. Blocks of
// different sites may cover the same address; the first covering block
// holding a record at the offset wins. A missing record is not an error.
func (r *Registry) Lookup(ctx context.Context, ipText string) (*api.BaseAddress, error) {
	addr, err := parseLookup(ipText)
	if err != nil {
		return nil, err
	}

	var found *api.BaseAddress
	r.store.View(func(tx store.ReadTx) {
		var blocks []*api.AddressBlock
		blocks, err = store.AddressBlocksContaining(tx, addr)
		if err != nil {
			return
		}
		for _, b := range blocks {
			if a := store.GetAddressAt(tx, b.ID, OffsetOf(b, addr)); a != nil {
				found = a
				return
			}
		}
	})
	return found, err
}

// LookupInSite finds the record placed at ipText in one site.
func (r *Registry) LookupInSite(ctx context.Context, siteID, ipText string) (*api.BaseAddress, error) {
	addr, err := parseLookup(ipText)
	if err != nil {
		return nil, err
	}

	var found *api.BaseAddress
	r.store.View(func(tx store.ReadTx) {
		found, err = lookupInSite(tx, siteID, addr)
	})
	return found, err
}

func lookupInSite(tx store.ReadTx, siteID string, addr netip.Addr) (*api.BaseAddress, error) {
	b, err := ContainingBlock(tx, siteID, addr)
	if b == nil || err != nil {
		return nil, err
	}
	return store.GetAddressAt(tx, b.ID, OffsetOf(b, addr)), nil
}

// ContainingBlock returns the block of a site whose range holds addr, or
// nil.
func ContainingBlock(tx store.ReadTx, siteID string, addr netip.Addr) (*api.AddressBlock, error) {
	below, err := store.AddressBlocksBelow(tx, siteID, addr, addr)
	if err != nil {
		return nil, errors.ErrInternal("scanning blocks of site %s: %v", siteID, err)
	}
	if len(below) == 0 || !Contains(below[0], addr) {
		return nil, nil
	}
	return below[0], nil
}
