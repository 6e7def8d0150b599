package manager

import (
	"context"
	"math/big"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/allocator"
	"github.com/contractor/addrspace/manager/errors"
)

// NextAddress allocates a free address of a block to a host. Allocations
// that lose their offset to a concurrent one are retried; the last error
// is returned once the retries are used up. A nil address and no error
// means the host's foundation handles its addressing.
func (m *Manager) NextAddress(ctx context.Context, req allocator.Request) (*api.BaseAddress, error) {
	if err := m.authorize(ctx, "NextAddress", "allocate", req.BlockID, req.NetworkedID); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt <= m.config.AllocationRetries; attempt++ {
		var a *api.BaseAddress
		a, err = m.allocator.NextAddress(ctx, req)
		if err == nil || !errors.IsRetryable(err) {
			return a, err
		}
		log.G(ctx).WithError(err).WithField("attempt", attempt+1).Debug("allocation lost a race")
	}
	return nil, err
}

// CreateAddress stores an address record of any kind.
func (m *Manager) CreateAddress(ctx context.Context, a *api.BaseAddress) (*api.BaseAddress, error) {
	if err := m.authorize(ctx, "CreateAddress", "create", a.Placement.BlockID, a.Placement.AliasOf); err != nil {
		return nil, err
	}
	return m.addresses.Create(ctx, a)
}

// UpdateAddress replaces an address record.
func (m *Manager) UpdateAddress(ctx context.Context, a *api.BaseAddress) (*api.BaseAddress, error) {
	if err := m.authorize(ctx, "UpdateAddress", "update", a.ID); err != nil {
		return nil, err
	}
	return m.addresses.Update(ctx, a)
}

// Reserve keeps an offset of a block out of circulation.
func (m *Manager) Reserve(ctx context.Context, blockID string, offset *big.Int, reason string) (*api.BaseAddress, error) {
	if err := m.authorize(ctx, "Reserve", "create", blockID); err != nil {
		return nil, err
	}
	return m.addresses.Reserve(ctx, blockID, offset, reason)
}

// CreateDynamic marks an offset of a block as part of a dynamic pool.
func (m *Manager) CreateDynamic(ctx context.Context, blockID string, offset *big.Int, pxe string) (*api.BaseAddress, error) {
	if err := m.authorize(ctx, "CreateDynamic", "create", blockID); err != nil {
		return nil, err
	}
	return m.addresses.CreateDynamic(ctx, blockID, offset, pxe)
}

// Release deletes an address record.
func (m *Manager) Release(ctx context.Context, id string) error {
	if err := m.authorize(ctx, "Release", "delete", id); err != nil {
		return err
	}
	return m.addresses.Release(ctx, id)
}

// GetAddress returns an address record by id.
func (m *Manager) GetAddress(ctx context.Context, id string) (*api.BaseAddress, error) {
	return m.addresses.Get(ctx, id)
}

// ResolveAddress computes the effective address of a record.
func (m *Manager) ResolveAddress(ctx context.Context, id string) (addresses.Effective, error) {
	return m.addresses.Resolve(ctx, id)
}

// ListBlockAddresses returns the records placed in a block, ordered by
// offset. AddressKindUnknown lists every kind.
func (m *Manager) ListBlockAddresses(ctx context.Context, blockID string, kind api.AddressKind) ([]*api.BaseAddress, error) {
	return m.addresses.ListForBlock(ctx, blockID, kind)
}

// LookupAddress returns the record holding an IP in any site, or nil.
func (m *Manager) LookupAddress(ctx context.Context, ipText string) (*api.BaseAddress, error) {
	a, err := m.registry.Lookup(ctx, ipText)
	return checkSubclass(ctx, a, err)
}

// LookupAddressInSite returns the record holding an IP in a site, or nil.
func (m *Manager) LookupAddressInSite(ctx context.Context, siteID, ipText string) (*api.BaseAddress, error) {
	a, err := m.registry.LookupInSite(ctx, siteID, ipText)
	return checkSubclass(ctx, a, err)
}

// checkSubclass turns a found record without its kind payload into an
// internal fault.
func checkSubclass(ctx context.Context, a *api.BaseAddress, err error) (*api.BaseAddress, error) {
	if err != nil || a == nil {
		return a, err
	}
	if _, err := addresses.Subclass(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
