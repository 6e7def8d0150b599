package addresses

import (
	"fmt"
	"regexp"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/store"
)

const (
	// maxAliasHops bounds alias resolution. Validation keeps chains acyclic,
	// a longer chain means the stored state is broken.
	maxAliasHops = 16

	maxReasonLength = 50
)

// InterfaceNameRegexp is the lexical rule for interface names.
var InterfaceNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.:]{0,19}$`)

func truncate(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

// normalize rewrites the optional fields of a to their canonical form.
func normalize(a *api.BaseAddress) {
	if a.Address != nil && a.Address.SubInterface != nil && *a.Address.SubInterface == 0 {
		a.Address.SubInterface = nil
	}
}

// Validate checks a against the rules of its kind and the records it
// references. Every offending field is reported. It must run in the
// transaction that writes a.
func Validate(tx store.ReadTx, a *api.BaseAddress) error {
	normalize(a)
	fields := map[string]string{}

	sub, ok := a.Subclass()
	if !ok {
		fields["kind"] = fmt.Sprintf("%v record has no payload", a.Kind)
		return errors.ErrValidation(fields)
	}

	// site of the block the address ends up in, empty when unknown
	var blockSite string

	switch a.Placement.Kind {
	case api.PlacementOwned:
		if a.Placement.AliasOf != "" {
			fields["pointer"] = "cannot be set together with an offset"
		}
		if a.Placement.BlockID == "" {
			fields["address_block"] = "is required"
		}
		if a.Placement.Offset == nil {
			fields["offset"] = "is required"
		}
		if a.Placement.BlockID != "" {
			b := store.GetAddressBlock(tx, a.Placement.BlockID)
			if b == nil {
				fields["address_block"] = fmt.Sprintf("%s not found", a.Placement.BlockID)
			} else {
				blockSite = b.SiteID
				if a.Placement.Offset != nil {
					if reason := registry.CheckOffset(b, a.Placement.Offset); reason != "" {
						fields["offset"] = reason
					}
				}
			}
		}
	case api.PlacementAlias:
		if a.Placement.BlockID != "" || a.Placement.Offset != nil {
			fields["pointer"] = "cannot be set together with an offset"
			break
		}
		if a.Kind != api.AddressKindAddress {
			fields["pointer"] = fmt.Sprintf("a %v cannot be an alias", a.Kind)
			break
		}
		owner, reason, err := resolveChain(tx, a.ID, a.Placement.AliasOf)
		if err != nil {
			return err
		}
		if reason != "" {
			fields["pointer"] = reason
			break
		}
		if b := store.GetAddressBlock(tx, owner.Placement.BlockID); b != nil {
			blockSite = b.SiteID
		}
	default:
		fields["pointer"] = fmt.Sprintf("unknown placement %d", a.Placement.Kind)
	}

	switch s := sub.(type) {
	case *api.HostAddress:
		validateHostAddress(tx, a, s, blockSite, fields)
	case *api.ReservedAddress:
		if s.Reason == "" || len(s.Reason) > maxReasonLength {
			fields["reason"] = fmt.Sprintf("must be 1 to %d characters", maxReasonLength)
		}
	case *api.DynamicAddress:
	}

	if len(fields) != 0 {
		return errors.ErrValidation(fields)
	}
	return nil
}

func validateHostAddress(tx store.ReadTx, a *api.BaseAddress, h *api.HostAddress, blockSite string, fields map[string]string) {
	if !InterfaceNameRegexp.MatchString(h.InterfaceName) {
		fields["interface_name"] = fmt.Sprintf("%q is invalid", truncate(h.InterfaceName))
	}
	if h.SubInterface != nil && *h.SubInterface < 0 {
		fields["sub_interface"] = "must be zero or positive"
	}

	host := store.GetNetworked(tx, h.NetworkedID)
	if host == nil {
		fields["networked"] = fmt.Sprintf("%q not found", h.NetworkedID)
		return
	}
	if blockSite != "" && blockSite != host.SiteID {
		fields["address_block"] = fmt.Sprintf("belongs to site %s, host %s is in site %s", blockSite, host.Hostname, host.SiteID)
	}

	if !h.IsPrimary {
		return
	}
	siblings, err := store.FindAddresses(tx, store.ByNetworked(host.ID))
	if err != nil {
		fields["is_primary"] = err.Error()
		return
	}
	for _, s := range siblings {
		if s.ID != a.ID && s.Address != nil && s.Address.IsPrimary {
			fields["is_primary"] = fmt.Sprintf("host %s already has primary address %s", host.Hostname, s.ID)
			return
		}
	}
}

// resolveChain follows an alias pointer from the record self to the
// address holding an offset. A user error comes back as a reason, a
// broken store as an error.
func resolveChain(tx store.ReadTx, self, target string) (*api.BaseAddress, string, error) {
	visited := map[string]struct{}{}
	if self != "" {
		visited[self] = struct{}{}
	}
	id := target
	for hops := 0; ; hops++ {
		if hops > maxAliasHops {
			return nil, "", errors.ErrInternal("alias chain from %s is longer than %d hops", target, maxAliasHops)
		}
		if _, seen := visited[id]; seen {
			if id == self && hops == 0 {
				return nil, "cannot point at itself", nil
			}
			return nil, fmt.Sprintf("alias chain through %s is circular", id), nil
		}
		visited[id] = struct{}{}

		cur := store.GetAddress(tx, id)
		if cur == nil {
			return nil, fmt.Sprintf("%s not found", id), nil
		}
		if cur.Kind != api.AddressKindAddress {
			return nil, fmt.Sprintf("%s is a %v, aliases must point at addresses", id, cur.Kind), nil
		}
		if !cur.Placement.IsAlias() {
			return cur, "", nil
		}
		id = cur.Placement.AliasOf
	}
}
