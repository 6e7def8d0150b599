package manager

import (
	"context"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/hosts"
	"github.com/contractor/addrspace/manager/interfaces"
)

// CreateNetworked stores a new host.
func (m *Manager) CreateNetworked(ctx context.Context, spec hosts.Spec) (*api.Networked, error) {
	if err := m.authorize(ctx, "CreateNetworked", "create", spec.SiteID); err != nil {
		return nil, err
	}
	return m.hosts.CreateNetworked(ctx, spec)
}

// DeleteNetworked decommissions a host and releases its addresses.
func (m *Manager) DeleteNetworked(ctx context.Context, id string) error {
	if err := m.authorize(ctx, "DeleteNetworked", "delete", id); err != nil {
		return err
	}
	return m.hosts.Delete(ctx, id)
}

// GetNetworked returns a host by id.
func (m *Manager) GetNetworked(ctx context.Context, id string) (*api.Networked, error) {
	return m.hosts.Get(ctx, id)
}

// GetNetworkedByHostname returns a host of a site by hostname.
func (m *Manager) GetNetworkedByHostname(ctx context.Context, siteID, hostname string) (*api.Networked, error) {
	return m.hosts.GetByHostname(ctx, siteID, hostname)
}

// ListNetworked returns the hosts of a site.
func (m *Manager) ListNetworked(ctx context.Context, siteID string) ([]*api.Networked, error) {
	return m.hosts.List(ctx, siteID)
}

// HostAddresses returns the addresses of a host.
func (m *Manager) HostAddresses(ctx context.Context, id string) ([]*api.BaseAddress, error) {
	return m.addresses.ListForHost(ctx, id)
}

// PrimaryAddress returns the primary address of a host, or nil.
func (m *Manager) PrimaryAddress(ctx context.Context, id string) (*api.BaseAddress, error) {
	return m.hosts.PrimaryAddress(ctx, id)
}

// ProvisioningAddress returns the address of the provisioning interface
// of a host, or nil.
func (m *Manager) ProvisioningAddress(ctx context.Context, id string) (*api.BaseAddress, error) {
	return m.hosts.ProvisioningAddress(ctx, id)
}

// FQDN returns the fully qualified name of a host.
func (m *Manager) FQDN(ctx context.Context, id string) (string, error) {
	return m.hosts.FQDN(ctx, id)
}

// CreateInterface stores a new network interface.
func (m *Manager) CreateInterface(ctx context.Context, i *api.NetworkInterface) (*api.NetworkInterface, error) {
	if err := m.authorize(ctx, "CreateInterface", "create", i.NetworkID); err != nil {
		return nil, err
	}
	return m.interfaces.Create(ctx, i)
}

// UpdateInterface replaces a network interface.
func (m *Manager) UpdateInterface(ctx context.Context, i *api.NetworkInterface) (*api.NetworkInterface, error) {
	if err := m.authorize(ctx, "UpdateInterface", "update", i.ID); err != nil {
		return nil, err
	}
	return m.interfaces.Update(ctx, i)
}

// DeleteInterface removes a network interface.
func (m *Manager) DeleteInterface(ctx context.Context, id string) error {
	if err := m.authorize(ctx, "DeleteInterface", "delete", id); err != nil {
		return err
	}
	return m.interfaces.Delete(ctx, id)
}

// GetInterface returns a network interface by id.
func (m *Manager) GetInterface(ctx context.Context, id string) (*api.NetworkInterface, error) {
	return m.interfaces.Get(ctx, id)
}

// HostInterfaces returns the interfaces of a host.
func (m *Manager) HostInterfaces(ctx context.Context, id string) ([]*api.NetworkInterface, error) {
	return m.interfaces.ListForHost(ctx, id)
}

// InterfaceConfig renders the configuration of an interface.
func (m *Manager) InterfaceConfig(ctx context.Context, id string) (*interfaces.Config, error) {
	return m.interfaces.Config(ctx, id)
}
