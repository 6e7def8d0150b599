package registry

import (
	"context"
	"fmt"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/identity"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
)

const (
	minMTU = 68
	maxMTU = 65535
)

// NetworkSpec is the operator supplied description of a network.
type NetworkSpec struct {
	SiteID string
	Name   string
	// MTU is optional, zero leaves it to the host default.
	MTU int
}

func validateNetworkSpec(spec NetworkSpec) error {
	fields := map[string]string{}
	if spec.SiteID == "" {
		fields["site"] = "is required"
	}
	if !nameRegexp.MatchString(spec.Name) {
		fields["name"] = fmt.Sprintf("%q is invalid", truncate(spec.Name))
	}
	if spec.MTU != 0 && (spec.MTU < minMTU || spec.MTU > maxMTU) {
		fields["mtu"] = fmt.Sprintf("must be between %d and %d", minMTU, maxMTU)
	}
	if len(fields) != 0 {
		return errors.ErrValidation(fields)
	}
	return nil
}

// CreateNetwork stores a new network.
func (r *Registry) CreateNetwork(ctx context.Context, spec NetworkSpec) (*api.Network, error) {
	if err := validateNetworkSpec(spec); err != nil {
		return nil, err
	}
	n := &api.Network{
		ID:     identity.NewID(),
		SiteID: spec.SiteID,
		Name:   spec.Name,
		MTU:    spec.MTU,
	}
	err := r.store.Update(func(tx store.Tx) error {
		return store.CreateNetwork(tx, n)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	log.G(ctx).WithField("network.id", n.ID).Debugf("network %s created in site %s", n.Name, n.SiteID)
	return n, nil
}

// GetNetwork returns a network by id.
func (r *Registry) GetNetwork(ctx context.Context, id string) (*api.Network, error) {
	var n *api.Network
	r.store.View(func(tx store.ReadTx) {
		n = store.GetNetwork(tx, id)
	})
	if n == nil {
		return nil, errors.ErrNotFound("network", id)
	}
	return n, nil
}

// ListNetworks returns the networks of a site, or of every site if siteID
// is empty.
func (r *Registry) ListNetworks(ctx context.Context, siteID string) ([]*api.Network, error) {
	var (
		networks []*api.Network
		err      error
	)
	r.store.View(func(tx store.ReadTx) {
		if siteID == "" {
			networks, err = store.FindNetworks(tx, store.All)
			return
		}
		networks, err = store.FindNetworks(tx, store.BySite(siteID))
	})
	return networks, err
}

// DeleteNetwork removes a network no interface is attached to, together
// with its block attachments.
func (r *Registry) DeleteNetwork(ctx context.Context, id string) error {
	err := r.store.Update(func(tx store.Tx) error {
		if store.GetNetwork(tx, id) == nil {
			return errors.ErrNotFound("network", id)
		}
		ifaces, err := store.FindNetworkInterfaces(tx, store.ByNetwork(id))
		if err != nil {
			return errors.ErrInternal("listing interfaces of network %s: %v", id, err)
		}
		if len(ifaces) != 0 {
			return errors.ErrInvalidField("network", "in use by interface %s", ifaces[0].Name)
		}
		joins, err := store.FindNetworkAddressBlocks(tx, store.ByNetwork(id))
		if err != nil {
			return errors.ErrInternal("listing blocks of network %s: %v", id, err)
		}
		for _, j := range joins {
			if err := store.DeleteNetworkAddressBlock(tx, j.ID); err != nil {
				return err
			}
		}
		return store.DeleteNetwork(tx, id)
	})
	return errors.FromStore(err)
}

// ValidateVLAN checks the tag settings of a block attachment.
func ValidateVLAN(vlan int, tagged bool) map[string]string {
	fields := map[string]string{}
	if vlan < api.VLANUntagged || vlan > api.VLANTrunk {
		fields["vlan"] = fmt.Sprintf("must be between %d and %d", api.VLANUntagged, api.VLANTrunk)
	}
	if tagged && vlan == api.VLANUntagged {
		fields["vlan_tagged"] = "vlan 0 cannot be tagged"
	}
	return fields
}

// AttachBlock joins a block to a network with the given tag settings. The
// block must belong to the network's site.
func (r *Registry) AttachBlock(ctx context.Context, networkID, blockID string, vlan int, tagged bool) (*api.NetworkAddressBlock, error) {
	if fields := ValidateVLAN(vlan, tagged); len(fields) != 0 {
		return nil, errors.ErrValidation(fields)
	}
	j := &api.NetworkAddressBlock{
		ID:             identity.NewID(),
		NetworkID:      networkID,
		AddressBlockID: blockID,
		VLAN:           vlan,
		VLANTagged:     tagged,
	}
	err := r.store.Update(func(tx store.Tx) error {
		n := store.GetNetwork(tx, networkID)
		if n == nil {
			return errors.ErrNotFound("network", networkID)
		}
		b := store.GetAddressBlock(tx, blockID)
		if b == nil {
			return errors.ErrNotFound("address block", blockID)
		}
		if b.SiteID != n.SiteID {
			return errors.ErrInvalidField("address_block", "belongs to site %s, network %s is in site %s", b.SiteID, n.Name, n.SiteID)
		}
		return store.CreateNetworkAddressBlock(tx, j)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	log.G(ctx).WithField("network.id", networkID).WithField("block.id", blockID).Debug("address block attached")
	return j, nil
}

// DetachBlock removes the join of a network and a block.
func (r *Registry) DetachBlock(ctx context.Context, networkID, blockID string) error {
	err := r.store.Update(func(tx store.Tx) error {
		j := store.GetNetworkAddressBlockByPair(tx, networkID, blockID)
		if j == nil {
			return errors.ErrNotFound("network address block", networkID+"/"+blockID)
		}
		return store.DeleteNetworkAddressBlock(tx, j.ID)
	})
	return errors.FromStore(err)
}

// NetworkBlocks returns the attachments of a network.
func (r *Registry) NetworkBlocks(ctx context.Context, networkID string) ([]*api.NetworkAddressBlock, error) {
	var (
		joins []*api.NetworkAddressBlock
		err   error
	)
	r.store.View(func(tx store.ReadTx) {
		joins, err = store.FindNetworkAddressBlocks(tx, store.ByNetwork(networkID))
	})
	return joins, err
}
