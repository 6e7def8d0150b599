package interfaces

import (
	"context"
	"sort"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
)

// ConfigAddress is an address bound to an interface, with the tag
// settings of its block on the interface's network.
type ConfigAddress struct {
	addresses.Effective
	AddressID    string `json:"address_id"`
	SubInterface *int   `json:"sub_interface,omitempty"`
	IsPrimary    bool   `json:"primary"`
	// VLAN is nil when the block is not attached to the network.
	VLAN       *int `json:"vlan,omitempty"`
	VLANTagged bool `json:"tagged"`
}

// Config is the rendered configuration of an interface.
type Config struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Network     string          `json:"network"`
	AddressList []ConfigAddress `json:"address_list"`

	MAC              string `json:"mac,omitempty"`
	PhysicalLocation string `json:"physical_location,omitempty"`

	Master string   `json:"master,omitempty"`
	Slaves []string `json:"slaves,omitempty"`
}

// Config renders the configuration of the interface with the given id.
func (s *Interfaces) Config(ctx context.Context, id string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	s.store.View(func(tx store.ReadTx) {
		i := store.GetNetworkInterface(tx, id)
		if i == nil {
			err = errors.ErrNotFound("network interface", id)
			return
		}
		cfg, err = ConfigInTx(ctx, tx, i)
	})
	if errors.IsErrInternal(err) {
		log.G(ctx).WithError(err).WithField("interface.id", id).Error("interface config failed")
	}
	return cfg, err
}

// ConfigInTx renders the configuration of i from the running transaction.
func ConfigInTx(ctx context.Context, tx store.ReadTx, i *api.NetworkInterface) (*Config, error) {
	sub, err := Subclass(ctx, i)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Name:        i.Name,
		Type:        i.Type(),
		AddressList: []ConfigAddress{},
	}
	if n := store.GetNetwork(tx, i.NetworkID); n != nil {
		cfg.Network = n.Name
	}

	switch p := sub.(type) {
	case *api.RealInterface:
		cfg.MAC = p.MAC
		cfg.PhysicalLocation = p.PhysicalLocation
	case *api.Aggregation:
		cfg.Master = interfaceName(tx, p.MasterID)
		for _, slave := range p.SlaveIDs {
			cfg.Slaves = append(cfg.Slaves, interfaceName(tx, slave))
		}
	}

	host, err := owner(tx, i)
	if err != nil || host == nil {
		return cfg, err
	}
	bound, err := store.FindAddresses(tx, store.ByNetworked(host.ID))
	if err != nil {
		return nil, errors.ErrInternal("listing addresses of %s: %v", host.ID, err)
	}
	for _, a := range bound {
		if a.Address == nil || a.Address.InterfaceName != i.Name {
			continue
		}
		eff, err := addresses.ResolveInTx(tx, a)
		if err != nil {
			return nil, err
		}
		entry := ConfigAddress{
			Effective:    eff,
			AddressID:    a.ID,
			SubInterface: a.Address.SubInterface,
			IsPrimary:    a.Address.IsPrimary,
		}
		if j := store.GetNetworkAddressBlockByPair(tx, i.NetworkID, eff.BlockID); j != nil {
			vlan := j.VLAN
			entry.VLAN = &vlan
			entry.VLANTagged = j.VLANTagged
		}
		cfg.AddressList = append(cfg.AddressList, entry)
	}
	sort.SliceStable(cfg.AddressList, func(a, b int) bool {
		return cfg.AddressList[a].IP.Less(cfg.AddressList[b].IP)
	})
	return cfg, nil
}

func interfaceName(tx store.ReadTx, id string) string {
	if i := store.GetNetworkInterface(tx, id); i != nil {
		return i.Name
	}
	return id
}
