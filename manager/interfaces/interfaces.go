package interfaces

import (
	"context"
	"sort"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/identity"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/sirupsen/logrus"
)

// Interfaces stores network interfaces.
type Interfaces struct {
	store *store.MemoryStore
}

// New returns an Interfaces backed by s.
func New(s *store.MemoryStore) *Interfaces {
	return &Interfaces{store: s}
}

func interfaceLogger(ctx context.Context, i *api.NetworkInterface) *logrus.Entry {
	return log.G(ctx).WithFields(logrus.Fields{
		"interface.id":   i.ID,
		"interface.name": i.Name,
		"interface.type": i.Type(),
	})
}

// Create validates and stores a new interface.
func (s *Interfaces) Create(ctx context.Context, i *api.NetworkInterface) (*api.NetworkInterface, error) {
	i = i.Copy()
	i.ID = identity.NewID()
	err := s.store.Update(func(tx store.Tx) error {
		if err := Validate(tx, i); err != nil {
			return err
		}
		return store.CreateNetworkInterface(tx, i)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	interfaceLogger(ctx, i).Debug("interface created")
	return i, nil
}

// Update replaces a stored interface. The kind of an interface is fixed at
// creation. A zero version in i overwrites whatever is stored.
func (s *Interfaces) Update(ctx context.Context, i *api.NetworkInterface) (*api.NetworkInterface, error) {
	i = i.Copy()
	err := s.store.Update(func(tx store.Tx) error {
		existing := store.GetNetworkInterface(tx, i.ID)
		if existing == nil {
			return errors.ErrNotFound("network interface", i.ID)
		}
		if existing.Kind != i.Kind {
			return errors.ErrInvalidField("kind", "cannot change from %v to %v", existing.Kind, i.Kind)
		}
		if i.Meta.Version == 0 {
			i.Meta = existing.Meta
		}
		if err := Validate(tx, i); err != nil {
			return err
		}
		return store.UpdateNetworkInterface(tx, i)
	})
	if err != nil {
		return nil, errors.FromStore(err)
	}
	interfaceLogger(ctx, i).Debug("interface updated")
	return i, nil
}

// Delete removes an interface. Interfaces bonded into an aggregation
// cannot be deleted until the aggregation is.
func (s *Interfaces) Delete(ctx context.Context, id string) error {
	err := s.store.Update(func(tx store.Tx) error {
		i := store.GetNetworkInterface(tx, id)
		if i == nil {
			return errors.ErrNotFound("network interface", id)
		}
		if bond, err := aggregationOf(tx, id); err != nil {
			return err
		} else if bond != nil {
			return errors.ErrInvalidField("interface", "bonded into %s", bond.Name)
		}
		return store.DeleteNetworkInterface(tx, id)
	})
	if err != nil {
		return errors.FromStore(err)
	}
	log.G(ctx).WithField("interface.id", id).Debug("interface deleted")
	return nil
}

// aggregationOf returns the aggregated interface bonding id, if any.
func aggregationOf(tx store.ReadTx, id string) (*api.NetworkInterface, error) {
	bonds, err := store.FindNetworkInterfaces(tx, store.ByBonding(id))
	if err != nil {
		return nil, errors.ErrInternal("listing bonds of %s: %v", id, err)
	}
	if len(bonds) == 0 {
		return nil, nil
	}
	return bonds[0], nil
}

// Get returns an interface by id.
func (s *Interfaces) Get(ctx context.Context, id string) (*api.NetworkInterface, error) {
	var i *api.NetworkInterface
	s.store.View(func(tx store.ReadTx) {
		i = store.GetNetworkInterface(tx, id)
	})
	if i == nil {
		return nil, errors.ErrNotFound("network interface", id)
	}
	return i, nil
}

// ListForHost returns the interfaces a host owns: the real interfaces of
// its foundation and its abstract interfaces, sorted by name.
func (s *Interfaces) ListForHost(ctx context.Context, networkedID string) ([]*api.NetworkInterface, error) {
	var (
		list []*api.NetworkInterface
		err  error
	)
	s.store.View(func(tx store.ReadTx) {
		list, err = hostInterfaces(tx, networkedID)
	})
	return list, err
}

func hostInterfaces(tx store.ReadTx, networkedID string) ([]*api.NetworkInterface, error) {
	host := store.GetNetworked(tx, networkedID)
	if host == nil {
		return nil, errors.ErrNotFound("networked", networkedID)
	}
	list, err := store.FindNetworkInterfaces(tx, store.ByNetworked(networkedID))
	if err != nil {
		return nil, errors.ErrInternal("listing interfaces of %s: %v", networkedID, err)
	}
	if s, ok := host.AsStructure(); ok {
		real, err := store.FindNetworkInterfaces(tx, store.ByFoundation(s.FoundationID))
		if err != nil {
			return nil, errors.ErrInternal("listing interfaces of foundation %s: %v", s.FoundationID, err)
		}
		list = append(list, real...)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Name < list[b].Name })
	return list, nil
}

// owner returns the host whose addresses an interface carries. Real
// interfaces are carried by the structure built on their foundation; the
// result is nil when there is none yet.
func owner(tx store.ReadTx, i *api.NetworkInterface) (*api.Networked, error) {
	switch {
	case i.Abstract != nil:
		return store.GetNetworked(tx, i.Abstract.NetworkedID), nil
	case i.Real != nil:
		hosts, err := store.FindNetworked(tx, store.ByFoundation(i.Real.FoundationID))
		if err != nil {
			return nil, errors.ErrInternal("listing hosts of foundation %s: %v", i.Real.FoundationID, err)
		}
		if len(hosts) == 0 {
			return nil, nil
		}
		return hosts[0], nil
	}
	return nil, nil
}

// ProvisioningInterfaceInTx returns the real interface a foundation
// provisions through, or nil.
func ProvisioningInterfaceInTx(tx store.ReadTx, foundationID string) (*api.NetworkInterface, error) {
	real, err := store.FindNetworkInterfaces(tx, store.ByFoundation(foundationID))
	if err != nil {
		return nil, errors.ErrInternal("listing interfaces of foundation %s: %v", foundationID, err)
	}
	for _, i := range real {
		if i.Real != nil && i.Real.IsProvisioning {
			return i, nil
		}
	}
	return nil, nil
}

// Subclass returns the most specific payload of i: *api.RealInterface,
// *api.Aggregation or *api.AbstractInterface. An interface whose kind has
// no payload is a consistency fault.
func Subclass(ctx context.Context, i *api.NetworkInterface) (interface{}, error) {
	switch {
	case i.Kind == api.InterfaceKindReal && i.Real != nil:
		return i.Real, nil
	case i.Kind == api.InterfaceKindAggregated && i.Aggregated != nil:
		return i.Aggregated, nil
	case i.IsAbstract() && i.Abstract != nil:
		return i.Abstract, nil
	}
	err := errors.ErrInternal("interface %s of kind %v has no payload", i.ID, i.Kind)
	log.G(ctx).WithError(err).WithField("interface.id", i.ID).Error("unresolvable interface record")
	return nil, err
}
