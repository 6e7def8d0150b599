// Package hosts manages Networked hosts and answers the address questions
// asked about them: primary address, provisioning interface and address,
// and fully qualified name.
package hosts

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/identity"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/interfaces"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/sirupsen/logrus"
)

var hostnameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,99}$`)

// ZoneResolver returns the DNS zone of a site. An empty zone means the
// site has none.
type ZoneResolver interface {
	ZoneFqdnForSite(ctx context.Context, siteID string) (string, error)
}

// Spec describes a new host. FoundationID makes it a Structure.
type Spec struct {
	SiteID       string
	Hostname     string
	FoundationID string
}

// Hosts stores Networked hosts.
type Hosts struct {
	store *store.MemoryStore
	zones ZoneResolver
}

// New returns a Hosts backed by s. zones may be nil, in which case no
// host has a zone.
func New(s *store.MemoryStore, zones ZoneResolver) *Hosts {
	return &Hosts{store: s, zones: zones}
}

func hostLogger(ctx context.Context, n *api.Networked) *logrus.Entry {
	return log.G(ctx).WithFields(logrus.Fields{
		"networked.id":       n.ID,
		"networked.hostname": n.Hostname,
		"site.id":            n.SiteID,
	})
}

// ValidateHostname checks the hostname rule, ignoring case.
func ValidateHostname(hostname string) string {
	if !hostnameRegexp.MatchString(strings.ToLower(hostname)) {
		return fmt.Sprintf("%q is not a valid hostname", hostname)
	}
	return ""
}

// CreateNetworked validates and stores a new host. Hostnames are unique
// per site regardless of case.
func (h *Hosts) CreateNetworked(ctx context.Context, spec Spec) (*api.Networked, error) {
	fields := map[string]string{}
	if spec.SiteID == "" {
		fields["site"] = "is required"
	}
	if reason := ValidateHostname(spec.Hostname); reason != "" {
		fields["hostname"] = reason
	}
	if len(fields) != 0 {
		return nil, errors.ErrValidation(fields)
	}

	n := &api.Networked{
		ID:       identity.NewID(),
		SiteID:   spec.SiteID,
		Hostname: spec.Hostname,
	}
	if spec.FoundationID != "" {
		n.Kind = api.NetworkedKindStructure
		n.Structure = &api.Structure{FoundationID: spec.FoundationID}
	}

	err := h.store.Update(func(tx store.Tx) error {
		return store.CreateNetworked(tx, n)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	hostLogger(ctx, n).Debug("host created")
	return n, nil
}

// Get returns a host by id.
func (h *Hosts) Get(ctx context.Context, id string) (*api.Networked, error) {
	var n *api.Networked
	h.store.View(func(tx store.ReadTx) {
		n = store.GetNetworked(tx, id)
	})
	if n == nil {
		return nil, errors.ErrNotFound("networked", id)
	}
	return n, nil
}

// GetByHostname returns the host of a site with the given hostname.
func (h *Hosts) GetByHostname(ctx context.Context, siteID, hostname string) (*api.Networked, error) {
	var n *api.Networked
	h.store.View(func(tx store.ReadTx) {
		n = store.GetNetworkedByHostname(tx, siteID, hostname)
	})
	if n == nil {
		return nil, errors.ErrNotFound("networked", siteID+"/"+hostname)
	}
	return n, nil
}

// List returns the hosts of a site sorted by hostname.
func (h *Hosts) List(ctx context.Context, siteID string) ([]*api.Networked, error) {
	var (
		list []*api.Networked
		err  error
	)
	h.store.View(func(tx store.ReadTx) {
		list, err = store.FindNetworked(tx, store.BySite(siteID))
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Hostname < list[b].Hostname })
	return list, nil
}

// Delete decommissions a host: its addresses are released, its abstract
// interfaces removed (aggregations first), then the host itself.
func (h *Hosts) Delete(ctx context.Context, id string) error {
	var released int
	err := h.store.Update(func(tx store.Tx) error {
		if store.GetNetworked(tx, id) == nil {
			return errors.ErrNotFound("networked", id)
		}
		var err error
		released, err = addresses.ReleaseForHostInTx(tx, id)
		if err != nil {
			return err
		}
		owned, err := store.FindNetworkInterfaces(tx, store.ByNetworked(id))
		if err != nil {
			return errors.ErrInternal("listing interfaces of %s: %v", id, err)
		}
		sort.SliceStable(owned, func(a, b int) bool {
			return owned[a].Aggregated != nil && owned[b].Aggregated == nil
		})
		for _, i := range owned {
			if err := store.DeleteNetworkInterface(tx, i.ID); err != nil {
				return err
			}
		}
		return store.DeleteNetworked(tx, id)
	})
	if err != nil {
		return errors.FromStore(err)
	}
	log.G(ctx).WithField("networked.id", id).Debugf("host deleted, %d addresses released", released)
	return nil
}

// PrimaryAddress returns the primary address of a host, or nil.
func (h *Hosts) PrimaryAddress(ctx context.Context, id string) (*api.BaseAddress, error) {
	var (
		primary *api.BaseAddress
		err     error
	)
	h.store.View(func(tx store.ReadTx) {
		if store.GetNetworked(tx, id) == nil {
			err = errors.ErrNotFound("networked", id)
			return
		}
		var list []*api.BaseAddress
		list, err = store.FindAddresses(tx, store.ByNetworked(id))
		for _, a := range list {
			if a.Address != nil && a.Address.IsPrimary {
				primary = a
				return
			}
		}
	})
	return primary, err
}

// ProvisioningInterface returns the interface a host is provisioned
// through, or nil. Only structures have one.
func (h *Hosts) ProvisioningInterface(ctx context.Context, id string) (*api.NetworkInterface, error) {
	var (
		iface *api.NetworkInterface
		err   error
	)
	h.store.View(func(tx store.ReadTx) {
		iface, err = provisioningInterface(tx, id)
	})
	return iface, err
}

func provisioningInterface(tx store.ReadTx, id string) (*api.NetworkInterface, error) {
	n := store.GetNetworked(tx, id)
	if n == nil {
		return nil, errors.ErrNotFound("networked", id)
	}
	s, ok := n.AsStructure()
	if !ok {
		return nil, nil
	}
	return interfaces.ProvisioningInterfaceInTx(tx, s.FoundationID)
}

// ProvisioningAddress returns the address bound to the provisioning
// interface of a host, or nil. An address on the interface itself wins
// over one on a sub-interface.
func (h *Hosts) ProvisioningAddress(ctx context.Context, id string) (*api.BaseAddress, error) {
	var (
		found *api.BaseAddress
		err   error
	)
	h.store.View(func(tx store.ReadTx) {
		var iface *api.NetworkInterface
		iface, err = provisioningInterface(tx, id)
		if err != nil || iface == nil {
			return
		}
		var list []*api.BaseAddress
		list, err = store.FindAddresses(tx, store.ByNetworked(id))
		for _, a := range list {
			if a.Address == nil || a.Address.InterfaceName != iface.Name {
				continue
			}
			if found == nil || (found.Address.SubInterface != nil && a.Address.SubInterface == nil) {
				found = a
			}
		}
	})
	return found, err
}

// FQDN returns the hostname qualified with the zone of the host's site,
// or the hostname alone when the site has no zone.
func (h *Hosts) FQDN(ctx context.Context, id string) (string, error) {
	n, err := h.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if h.zones == nil {
		return n.Hostname, nil
	}
	zone, err := h.zones.ZoneFqdnForSite(ctx, n.SiteID)
	if err != nil {
		return "", err
	}
	zone = strings.Trim(zone, ".")
	if zone == "" {
		return n.Hostname, nil
	}
	return n.Hostname + "." + zone, nil
}
