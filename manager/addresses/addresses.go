package addresses

import (
	"context"
	"math/big"
	"net/netip"
	"sort"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/identity"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/sirupsen/logrus"
)

// Addresses stores and resolves address records.
type Addresses struct {
	store *store.MemoryStore
}

// New returns an Addresses backed by s.
func New(s *store.MemoryStore) *Addresses {
	return &Addresses{store: s}
}

// Effective is the address a record stands for, with the network facts of
// the block holding it. Aliases report the facts of the record they
// resolve to.
type Effective struct {
	IP      netip.Addr `json:"ip_address"`
	Subnet  netip.Addr `json:"subnet"`
	Netmask netip.Addr `json:"netmask"`
	Prefix  int        `json:"prefix"`
	// Gateway is nil when the block has no gateway.
	Gateway *netip.Addr `json:"gateway,omitempty"`
	BlockID string     `json:"address_block_id"`
	Offset  *big.Int   `json:"offset"`
}

func addressLogger(ctx context.Context, a *api.BaseAddress) *logrus.Entry {
	fields := logrus.Fields{
		"address.id":   a.ID,
		"address.type": a.Type(),
	}
	if a.Placement.IsAlias() {
		fields["address.alias_of"] = a.Placement.AliasOf
	} else {
		fields["block.id"] = a.Placement.BlockID
		fields["address.offset"] = a.Placement.Offset
	}
	return log.G(ctx).WithFields(fields)
}

// CreateInTx validates a and stores it in the running transaction. An ID
// is assigned if a has none. A lost race on the block offset comes back
// as the store's offset conflict.
func CreateInTx(tx store.Tx, a *api.BaseAddress) error {
	if a.ID == "" {
		a.ID = identity.NewID()
	}
	if err := Validate(tx, a); err != nil {
		return err
	}
	return store.CreateAddress(tx, a)
}

// Create validates and stores a new record of any kind.
func (s *Addresses) Create(ctx context.Context, a *api.BaseAddress) (*api.BaseAddress, error) {
	a = a.Copy()
	a.ID = identity.NewID()
	err := s.store.Update(func(tx store.Tx) error {
		return CreateInTx(tx, a)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	addressLogger(ctx, a).Debug("address created")
	return a, nil
}

// Update replaces a stored record. A zero version in a means the caller
// did not read the record first and overwrites whatever is stored.
func (s *Addresses) Update(ctx context.Context, a *api.BaseAddress) (*api.BaseAddress, error) {
	a = a.Copy()
	err := s.store.Update(func(tx store.Tx) error {
		existing := store.GetAddress(tx, a.ID)
		if existing == nil {
			return errors.ErrNotFound("address", a.ID)
		}
		if a.Kind != existing.Kind {
			return errors.ErrInvalidField("kind", "cannot change from %v to %v", existing.Kind, a.Kind)
		}
		if a.Meta.Version == 0 {
			a.Meta = existing.Meta
		}
		if err := Validate(tx, a); err != nil {
			return err
		}
		return store.UpdateAddress(tx, a)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	addressLogger(ctx, a).Debug("address updated")
	return a, nil
}

// Reserve keeps an offset of a block out of circulation.
func (s *Addresses) Reserve(ctx context.Context, blockID string, offset *big.Int, reason string) (*api.BaseAddress, error) {
	return s.Create(ctx, api.NewReservedAddress(blockID, offset, reason))
}

// CreateDynamic marks an offset of a block as part of a dynamic pool.
func (s *Addresses) CreateDynamic(ctx context.Context, blockID string, offset *big.Int, pxe string) (*api.BaseAddress, error) {
	return s.Create(ctx, api.NewDynamicAddress(blockID, offset, pxe))
}

// Release deletes a record. Records other addresses alias cannot be
// released until the aliases are gone.
func (s *Addresses) Release(ctx context.Context, id string) error {
	err := s.store.Update(func(tx store.Tx) error {
		return releaseInTx(tx, id)
	})
	if err != nil {
		return errors.FromStore(err)
	}
	log.G(ctx).WithField("address.id", id).Debug("address released")
	return nil
}

func releaseInTx(tx store.Tx, id string) error {
	if store.GetAddress(tx, id) == nil {
		return errors.ErrNotFound("address", id)
	}
	aliases, err := store.FindAddresses(tx, store.ByAliasOf(id))
	if err != nil {
		return errors.ErrInternal("listing aliases of %s: %v", id, err)
	}
	if len(aliases) != 0 {
		return errors.ErrInvalidField("address", "aliased by %s", aliases[0].ID)
	}
	return store.DeleteAddress(tx, id)
}

// ReleaseForHost deletes every address of a host, aliases first. It is
// used when a host is decommissioned.
func (s *Addresses) ReleaseForHost(ctx context.Context, networkedID string) (int, error) {
	var released int
	err := s.store.Update(func(tx store.Tx) error {
		var err error
		released, err = ReleaseForHostInTx(tx, networkedID)
		return err
	})
	if err != nil {
		return 0, errors.FromStore(err)
	}
	log.G(ctx).WithField("networked.id", networkedID).Debugf("released %d addresses", released)
	return released, nil
}

// ReleaseForHostInTx is ReleaseForHost inside a running transaction.
func ReleaseForHostInTx(tx store.Tx, networkedID string) (int, error) {
	owned, err := store.FindAddresses(tx, store.ByNetworked(networkedID))
	if err != nil {
		return 0, errors.ErrInternal("listing addresses of host %s: %v", networkedID, err)
	}
	released := 0
	// aliases of the host's addresses may belong to the host itself
	pending := owned
	for len(pending) != 0 {
		var blocked []*api.BaseAddress
		for _, a := range pending {
			aliases, err := store.FindAddresses(tx, store.ByAliasOf(a.ID))
			if err != nil {
				return 0, errors.ErrInternal("listing aliases of %s: %v", a.ID, err)
			}
			if len(aliases) != 0 {
				blocked = append(blocked, a)
				continue
			}
			if err := store.DeleteAddress(tx, a.ID); err != nil {
				return 0, err
			}
			released++
		}
		if len(blocked) == len(pending) {
			return 0, errors.ErrInvalidField("address", "%s is aliased by an address of another host", blocked[0].ID)
		}
		pending = blocked
	}
	return released, nil
}

// Get returns a record by id. A record whose kind has no payload is an
// internal fault.
func (s *Addresses) Get(ctx context.Context, id string) (*api.BaseAddress, error) {
	var a *api.BaseAddress
	s.store.View(func(tx store.ReadTx) {
		a = store.GetAddress(tx, id)
	})
	if a == nil {
		return nil, errors.ErrNotFound("address", id)
	}
	if _, err := Subclass(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListForBlock returns the records holding an offset of a block, ordered
// by offset. A known kind restricts the list to that kind. Aliases hold
// no offset and are never listed.
func (s *Addresses) ListForBlock(ctx context.Context, blockID string, kind api.AddressKind) ([]*api.BaseAddress, error) {
	var (
		list []*api.BaseAddress
		err  error
	)
	s.store.View(func(tx store.ReadTx) {
		if store.GetAddressBlock(tx, blockID) == nil {
			err = errors.ErrNotFound("address block", blockID)
			return
		}
		by := store.ByAddressBlock(blockID)
		if kind != api.AddressKindUnknown {
			by = store.ByBlockKind(blockID, kind)
		}
		list, err = store.FindAddresses(tx, by)
	})
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if _, err := Subclass(ctx, a); err != nil {
			return nil, err
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Placement.Offset.Cmp(list[j].Placement.Offset) < 0
	})
	return list, nil
}

// ListForHost returns the host addresses of a host, aliases included.
func (s *Addresses) ListForHost(ctx context.Context, networkedID string) ([]*api.BaseAddress, error) {
	var (
		list []*api.BaseAddress
		err  error
	)
	s.store.View(func(tx store.ReadTx) {
		list, err = store.FindAddresses(tx, store.ByNetworked(networkedID))
	})
	return list, err
}

// Subclass returns the typed payload of a. A record whose kind has no
// payload is a consistency fault; it is logged and returned as such.
func Subclass(ctx context.Context, a *api.BaseAddress) (api.Subclass, error) {
	sub, ok := a.Subclass()
	if !ok {
		err := errors.ErrInternal("address %s of kind %v has no payload", a.ID, a.Kind)
		log.G(ctx).WithError(err).WithField("address.id", a.ID).Error("unresolvable address record")
		return nil, err
	}
	return sub, nil
}

// ResolveInTx computes the effective address of a.
func ResolveInTx(tx store.ReadTx, a *api.BaseAddress) (Effective, error) {
	owner := a
	if a.Placement.IsAlias() {
		var (
			reason string
			err    error
		)
		owner, reason, err = resolveChain(tx, a.ID, a.Placement.AliasOf)
		if err != nil {
			return Effective{}, err
		}
		if reason != "" {
			return Effective{}, errors.ErrInternal("stored alias %s is broken: %s", a.ID, reason)
		}
	}

	b := store.GetAddressBlock(tx, owner.Placement.BlockID)
	if b == nil {
		return Effective{}, errors.ErrInternal("address %s references missing block %s", owner.ID, owner.Placement.BlockID)
	}
	ip, err := registry.AddressAt(b, owner.Placement.Offset)
	if err != nil {
		return Effective{}, errors.ErrInternal("address %s: %v", owner.ID, err)
	}
	eff := Effective{
		IP:      ip,
		Subnet:  b.Subnet,
		Netmask: registry.Netmask(b),
		Prefix:  b.Prefix,
		BlockID: b.ID,
		Offset:  new(big.Int).Set(owner.Placement.Offset),
	}
	if gw, ok := registry.Gateway(b); ok {
		eff.Gateway = &gw
	}
	return eff, nil
}

// Resolve computes the effective address of the record with the given id.
func (s *Addresses) Resolve(ctx context.Context, id string) (Effective, error) {
	var (
		eff Effective
		err error
	)
	s.store.View(func(tx store.ReadTx) {
		a := store.GetAddress(tx, id)
		if a == nil {
			err = errors.ErrNotFound("address", id)
			return
		}
		eff, err = ResolveInTx(tx, a)
	})
	if errors.IsErrInternal(err) {
		log.G(ctx).WithError(err).WithField("address.id", id).Error("address resolution failed")
	}
	return eff, err
}
