package interfaces

import (
	"fmt"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
)

const maxPhysicalLocation = 100

// Validate checks i against the rules of its kind and the records it
// references, normalizing the MAC of real interfaces. Every offending
// field is reported. It must run in the transaction that writes i.
func Validate(tx store.ReadTx, i *api.NetworkInterface) error {
	fields := map[string]string{}

	if !addresses.InterfaceNameRegexp.MatchString(i.Name) {
		fields["name"] = fmt.Sprintf("%q is not a valid interface name", i.Name)
	}

	var network *api.Network
	if i.NetworkID == "" {
		fields["network"] = "is required"
	} else if network = store.GetNetwork(tx, i.NetworkID); network == nil {
		fields["network"] = fmt.Sprintf("%s not found", i.NetworkID)
	}

	switch i.Kind {
	case api.InterfaceKindReal:
		if i.Real == nil {
			fields["kind"] = "Real interface has no payload"
			break
		}
		if i.Abstract != nil || i.Aggregated != nil {
			fields["kind"] = "Real interface cannot carry abstract settings"
		}
		validateReal(tx, i, fields)
	case api.InterfaceKindAbstract, api.InterfaceKindAggregated:
		if i.Abstract == nil {
			fields["kind"] = fmt.Sprintf("%v interface has no payload", i.Kind)
			break
		}
		if i.Real != nil {
			fields["kind"] = fmt.Sprintf("%v interface cannot carry physical settings", i.Kind)
		}
		validateAbstract(tx, i, network, fields)
		if i.Kind == api.InterfaceKindAggregated {
			validateAggregation(tx, i, fields)
		} else if i.Aggregated != nil {
			fields["kind"] = "Abstract interface cannot carry bonding settings"
		}
	default:
		fields["kind"] = fmt.Sprintf("%v is not a valid interface kind", i.Kind)
	}

	if len(fields) != 0 {
		return errors.ErrValidation(fields)
	}
	return nil
}

func validateReal(tx store.ReadTx, i *api.NetworkInterface, fields map[string]string) {
	r := i.Real
	if r.FoundationID == "" {
		fields["foundation"] = "is required"
	}
	if r.PhysicalLocation == "" {
		fields["physical_location"] = "is required"
	} else if len(r.PhysicalLocation) > maxPhysicalLocation {
		fields["physical_location"] = fmt.Sprintf("must be at most %d characters", maxPhysicalLocation)
	}
	if r.MAC != "" {
		mac, ok := NormalizeMAC(r.MAC)
		if !ok {
			fields["mac"] = fmt.Sprintf("%q is not a valid mac", r.MAC)
		} else {
			r.MAC = mac
		}
	}
	if r.IsProvisioning && r.FoundationID != "" {
		others, err := store.FindNetworkInterfaces(tx, store.ByFoundation(r.FoundationID))
		if err != nil {
			fields["is_provisioning"] = err.Error()
			return
		}
		for _, o := range others {
			if o.ID != i.ID && o.Real != nil && o.Real.IsProvisioning {
				fields["is_provisioning"] = fmt.Sprintf("foundation already provisions through %s", o.Name)
				break
			}
		}
	}
}

func validateAbstract(tx store.ReadTx, i *api.NetworkInterface, network *api.Network, fields map[string]string) {
	id := i.Abstract.NetworkedID
	if id == "" {
		fields["networked"] = "is required"
		return
	}
	host := store.GetNetworked(tx, id)
	if host == nil {
		fields["networked"] = fmt.Sprintf("%s not found", id)
		return
	}
	if _, ok := host.AsStructure(); !ok {
		fields["networked"] = fmt.Sprintf("%s is not a structure", host.Hostname)
	}
	if network != nil && network.SiteID != host.SiteID {
		fields["network"] = fmt.Sprintf("belongs to site %s, host is in site %s", network.SiteID, host.SiteID)
	}
}

func validateAggregation(tx store.ReadTx, i *api.NetworkInterface, fields map[string]string) {
	g := i.Aggregated
	if g == nil {
		fields["master"] = "is required"
		return
	}

	switch {
	case g.MasterID == "":
		fields["master"] = "is required"
	case g.MasterID == i.ID:
		fields["master"] = "cannot be the interface itself"
	case store.GetNetworkInterface(tx, g.MasterID) == nil:
		fields["master"] = fmt.Sprintf("%s not found", g.MasterID)
	}

	seen := map[string]struct{}{}
	for _, id := range g.SlaveIDs {
		var reason string
		switch _, dup := seen[id]; {
		case dup:
			reason = fmt.Sprintf("%s is listed twice", id)
		case id == i.ID:
			reason = "cannot include the interface itself"
		case id == g.MasterID:
			reason = fmt.Sprintf("%s is the master", id)
		case store.GetNetworkInterface(tx, id) == nil:
			reason = fmt.Sprintf("%s not found", id)
		}
		if reason != "" {
			fields["slaves"] = reason
			break
		}
		seen[id] = struct{}{}
	}
}
