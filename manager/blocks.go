package manager

import (
	"context"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/registry"
)

// CreateAddressBlock validates and stores a new block.
func (m *Manager) CreateAddressBlock(ctx context.Context, spec registry.BlockSpec) (*api.AddressBlock, error) {
	if err := m.authorize(ctx, "CreateAddressBlock", "create", spec.SiteID); err != nil {
		return nil, err
	}
	return m.registry.Create(ctx, spec)
}

// UpdateAddressBlock replaces the settings of a block.
func (m *Manager) UpdateAddressBlock(ctx context.Context, id string, spec registry.BlockSpec) (*api.AddressBlock, error) {
	if err := m.authorize(ctx, "UpdateAddressBlock", "update", id); err != nil {
		return nil, err
	}
	return m.registry.Update(ctx, id, spec)
}

// DeleteAddressBlock removes a block that holds no addresses.
func (m *Manager) DeleteAddressBlock(ctx context.Context, id string) error {
	if err := m.authorize(ctx, "DeleteAddressBlock", "delete", id); err != nil {
		return err
	}
	return m.registry.Delete(ctx, id)
}

// GetAddressBlock returns a block by id.
func (m *Manager) GetAddressBlock(ctx context.Context, id string) (*api.AddressBlock, error) {
	return m.registry.Get(ctx, id)
}

// ListAddressBlocks returns the blocks of a site.
func (m *Manager) ListAddressBlocks(ctx context.Context, siteID string) ([]*api.AddressBlock, error) {
	return m.registry.List(ctx, siteID)
}

// Usage counts the offsets of a block by kind.
func (m *Manager) Usage(ctx context.Context, id string) (registry.Usage, error) {
	return m.registry.Usage(ctx, id)
}

// CreateNetwork stores a new network.
func (m *Manager) CreateNetwork(ctx context.Context, spec registry.NetworkSpec) (*api.Network, error) {
	if err := m.authorize(ctx, "CreateNetwork", "create", spec.SiteID); err != nil {
		return nil, err
	}
	return m.registry.CreateNetwork(ctx, spec)
}

// DeleteNetwork removes a network.
func (m *Manager) DeleteNetwork(ctx context.Context, id string) error {
	if err := m.authorize(ctx, "DeleteNetwork", "delete", id); err != nil {
		return err
	}
	return m.registry.DeleteNetwork(ctx, id)
}

// GetNetwork returns a network by id.
func (m *Manager) GetNetwork(ctx context.Context, id string) (*api.Network, error) {
	return m.registry.GetNetwork(ctx, id)
}

// ListNetworks returns the networks of a site.
func (m *Manager) ListNetworks(ctx context.Context, siteID string) ([]*api.Network, error) {
	return m.registry.ListNetworks(ctx, siteID)
}

// AttachBlock joins a block to a network.
func (m *Manager) AttachBlock(ctx context.Context, networkID, blockID string, vlan int, tagged bool) (*api.NetworkAddressBlock, error) {
	if err := m.authorize(ctx, "AttachBlock", "update", networkID, blockID); err != nil {
		return nil, err
	}
	return m.registry.AttachBlock(ctx, networkID, blockID, vlan, tagged)
}

// DetachBlock removes the join of a block and a network.
func (m *Manager) DetachBlock(ctx context.Context, networkID, blockID string) error {
	if err := m.authorize(ctx, "DetachBlock", "update", networkID, blockID); err != nil {
		return err
	}
	return m.registry.DetachBlock(ctx, networkID, blockID)
}

// NetworkBlocks returns the block attachments of a network.
func (m *Manager) NetworkBlocks(ctx context.Context, networkID string) ([]*api.NetworkAddressBlock, error) {
	return m.registry.NetworkBlocks(ctx, networkID)
}
