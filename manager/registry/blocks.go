package registry

import (
	"context"
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/identity"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/contractor/addrspace/netmath"
	"github.com/sirupsen/logrus"
)

var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.]{0,39}$`)

// Registry owns the address blocks and networks of every site.
type Registry struct {
	store *store.MemoryStore
}

// New returns a registry backed by s.
func New(s *store.MemoryStore) *Registry {
	return &Registry{store: s}
}

// BlockSpec is the operator supplied description of an address block.
type BlockSpec struct {
	SiteID string
	Name   string
	// Subnet is any address of the network, optionally followed by a
	// "/prefix" suffix.
	Subnet        string
	Prefix        int
	GatewayOffset *big.Int
}

func truncate(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

// Normalize validates spec and returns the block it describes, with the
// subnet moved to the network base address and the max address derived.
// Every offending field is reported.
func Normalize(spec BlockSpec) (*api.AddressBlock, error) {
	fields := map[string]string{}

	subnetText, prefix := spec.Subnet, spec.Prefix
	if i := strings.IndexByte(subnetText, '/'); i >= 0 {
		p, err := strconv.Atoi(subnetText[i+1:])
		switch {
		case err != nil:
			fields["prefix"] = fmt.Sprintf("%q is not a prefix length", truncate(subnetText[i+1:]))
		case prefix != 0 && prefix != p:
			fields["prefix"] = fmt.Sprintf("/%d does not match the subnet suffix /%d", prefix, p)
		}
		subnetText, prefix = subnetText[:i], p
	}

	if spec.SiteID == "" {
		fields["site"] = "is required"
	}
	if !nameRegexp.MatchString(spec.Name) {
		fields["name"] = fmt.Sprintf("%q is invalid", truncate(spec.Name))
	}

	subnet, family, err := netmath.Parse(subnetText)
	if err != nil {
		fields["subnet"] = "invalid ip address"
	}
	if _, ok := fields["prefix"]; !ok {
		switch {
		case prefix < 1:
			fields["prefix"] = "min prefix is 1"
		case err == nil && prefix > netmath.MaxPrefix(family):
			fields["prefix"] = fmt.Sprintf("max prefix for %v is %d", family, netmath.MaxPrefix(family))
		}
	}

	_, badSubnet := fields["subnet"]
	_, badPrefix := fields["prefix"]
	if !badSubnet && !badPrefix && spec.GatewayOffset != nil {
		usable, err := netmath.NetworkRange(subnet, family, prefix, true, true)
		if err != nil {
			fields["gateway_offset"] = err.Error()
		} else if !usable.Contains(spec.GatewayOffset) {
			fields["gateway_offset"] = fmt.Sprintf("must be between %s and %s", usable.Low, usable.High)
		}
	}

	if len(fields) != 0 {
		return nil, errors.ErrValidation(fields)
	}

	low, high, err := netmath.NetworkBounds(subnet, family, prefix, true, false)
	if err != nil {
		return nil, errors.ErrInternal("bounds of %s/%d: %v", subnetText, prefix, err)
	}
	first, err := netmath.ToAddr(low, family)
	if err != nil {
		return nil, errors.ErrInternal("network base of %s/%d: %v", subnetText, prefix, err)
	}
	last, err := netmath.ToAddr(high, family)
	if err != nil {
		return nil, errors.ErrInternal("last address of %s/%d: %v", subnetText, prefix, err)
	}

	b := &api.AddressBlock{
		SiteID:     spec.SiteID,
		Name:       spec.Name,
		Subnet:     first,
		Prefix:     prefix,
		MaxAddress: last,
	}
	if spec.GatewayOffset != nil {
		b.GatewayOffset = new(big.Int).Set(spec.GatewayOffset)
	}
	return b, nil
}

func between(x, low, high netip.Addr) bool {
	return !x.Less(low) && !high.Less(x)
}

// Overlaps is the four-way interval test: a contains the start of b, a
// contains the end of b, a is contained by b, or a contains b.
func Overlaps(a, b *api.AddressBlock) bool {
	if a.Subnet.Is4() != b.Subnet.Is4() {
		return false
	}
	return between(b.Subnet, a.Subnet, a.MaxAddress) ||
		between(b.MaxAddress, a.Subnet, a.MaxAddress) ||
		(between(a.Subnet, b.Subnet, b.MaxAddress) && between(a.MaxAddress, b.Subnet, b.MaxAddress)) ||
		(between(b.Subnet, a.Subnet, a.MaxAddress) && between(b.MaxAddress, a.Subnet, a.MaxAddress))
}

// checkOverlap fails with an overlap error if b intersects another block
// of its site. It must run in the transaction that writes b.
func checkOverlap(tx store.ReadTx, b *api.AddressBlock) error {
	candidates, err := store.AddressBlocksBelow(tx, b.SiteID, b.Subnet, b.MaxAddress)
	if err != nil {
		return errors.ErrInternal("scanning blocks of site %s: %v", b.SiteID, err)
	}
	for _, c := range candidates {
		if c.ID == b.ID {
			continue
		}
		if Overlaps(b, c) {
			return errors.ErrOverlap(b.CIDR(), fmt.Sprintf("%s (%s)", c.CIDR(), c.Name))
		}
	}
	return nil
}

// checkOccupants makes sure every address of the block stays valid under
// its new shape.
func checkOccupants(tx store.ReadTx, b *api.AddressBlock) error {
	occupants, err := store.FindAddresses(tx, store.ByAddressBlock(b.ID))
	if err != nil {
		return errors.ErrInternal("listing addresses of block %s: %v", b.ID, err)
	}
	fields := map[string]string{}
	for _, a := range occupants {
		if b.GatewayOffset != nil && a.Placement.Offset.Cmp(b.GatewayOffset) == 0 {
			fields["gateway_offset"] = fmt.Sprintf("offset %s is held by %s %s", b.GatewayOffset, a.Type(), a.ID)
			continue
		}
		if reason := CheckOffset(b, a.Placement.Offset); reason != "" {
			fields["prefix"] = fmt.Sprintf("would orphan %s %s at offset %s", a.Type(), a.ID, a.Placement.Offset)
		}
	}
	if len(fields) != 0 {
		return errors.ErrValidation(fields)
	}
	return nil
}

func blockLogger(ctx context.Context, b *api.AddressBlock) *logrus.Entry {
	return log.G(ctx).WithFields(logrus.Fields{
		"block.id":   b.ID,
		"block.cidr": b.CIDR(),
		"site.id":    b.SiteID,
	})
}

// Create validates and stores a new block.
// - Returns a validation error if spec is malformed.
// - Returns an overlap error if the block intersects a block of its site.
// - Returns a conflict error if the name is taken in the site.
func (r *Registry) Create(ctx context.Context, spec BlockSpec) (*api.AddressBlock, error) {
	b, err := Normalize(spec)
	if err != nil {
		return nil, err
	}
	b.ID = identity.NewID()

	err = r.store.Update(func(tx store.Tx) error {
		if err := checkOverlap(tx, b); err != nil {
			return err
		}
		return store.CreateAddressBlock(tx, b)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	blockLogger(ctx, b).Debug("address block created")
	return b, nil
}

// Update replaces the shape of an existing block. Addresses keep their
// offsets, so the new shape must still contain all of them.
func (r *Registry) Update(ctx context.Context, id string, spec BlockSpec) (*api.AddressBlock, error) {
	b, err := Normalize(spec)
	if err != nil {
		return nil, err
	}
	b.ID = id

	err = r.store.Update(func(tx store.Tx) error {
		existing := store.GetAddressBlock(tx, id)
		if existing == nil {
			return errors.ErrNotFound("address block", id)
		}
		if existing.SiteID != b.SiteID {
			return errors.ErrInvalidField("site", "blocks cannot move between sites")
		}
		b.Meta = existing.Meta
		if err := checkOverlap(tx, b); err != nil {
			return err
		}
		if err := checkOccupants(tx, b); err != nil {
			return err
		}
		return store.UpdateAddressBlock(tx, b)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	blockLogger(ctx, b).Debug("address block updated")
	return b, nil
}

// Delete removes a block that no address uses anymore, together with its
// network attachments.
func (r *Registry) Delete(ctx context.Context, id string) error {
	err := r.store.Update(func(tx store.Tx) error {
		if store.GetAddressBlock(tx, id) == nil {
			return errors.ErrNotFound("address block", id)
		}
		n, err := store.CountAddresses(tx, store.ByAddressBlock(id))
		if err != nil {
			return errors.ErrInternal("counting addresses of block %s: %v", id, err)
		}
		if n != 0 {
			return errors.ErrInvalidField("address_block", "in use by %d addresses", n)
		}
		joins, err := store.FindNetworkAddressBlocks(tx, store.ByAddressBlock(id))
		if err != nil {
			return errors.ErrInternal("listing networks of block %s: %v", id, err)
		}
		for _, j := range joins {
			if err := store.DeleteNetworkAddressBlock(tx, j.ID); err != nil {
				return err
			}
		}
		return store.DeleteAddressBlock(tx, id)
	})
	if err != nil {
		return errors.FromStore(err)
	}
	log.G(ctx).WithField("block.id", id).Debug("address block deleted")
	return nil
}

// Get returns a block by id.
func (r *Registry) Get(ctx context.Context, id string) (*api.AddressBlock, error) {
	var b *api.AddressBlock
	r.store.View(func(tx store.ReadTx) {
		b = store.GetAddressBlock(tx, id)
	})
	if b == nil {
		return nil, errors.ErrNotFound("address block", id)
	}
	return b, nil
}

// List returns the blocks of a site, or of every site if siteID is empty.
func (r *Registry) List(ctx context.Context, siteID string) ([]*api.AddressBlock, error) {
	var (
		blocks []*api.AddressBlock
		err    error
	)
	r.store.View(func(tx store.ReadTx) {
		if siteID == "" {
			blocks, err = store.FindAddressBlocks(tx, store.All)
			return
		}
		blocks, err = store.FindAddressBlocks(tx, store.BySite(siteID))
	})
	return blocks, err
}
