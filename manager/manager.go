package manager

import (
	"context"

	"code.cloudfoundry.org/clock"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/allocator"
	"github.com/contractor/addrspace/manager/collector"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/hosts"
	"github.com/contractor/addrspace/manager/interfaces"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/persist"
	"github.com/contractor/addrspace/manager/state/store"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultAllocationRetries is the number of times an allocation that lost
// its offset to a concurrent one is retried.
const DefaultAllocationRetries = 3

// Authorizer decides whether a caller may perform a mutating operation on
// the target records.
type Authorizer interface {
	Authorize(ctx context.Context, caller, operation string, targetIDs []string, action string) (bool, error)
}

// Config is used to tune the Manager.
type Config struct {
	// StateFile is the bolt file the store is kept in. State lives in
	// memory only if it is empty.
	StateFile string

	// Authorizer gates mutating operations. Everything is allowed if it
	// is nil.
	Authorizer Authorizer
	// Zones qualifies hostnames. Hosts have no zone if it is nil.
	Zones hosts.ZoneResolver
	// Foundations tells which hosts get their addresses elsewhere.
	Foundations allocator.FoundationResolver

	// AllocationRetries is the number of retries of an allocation that
	// lost a race. Zero takes the default, negative disables retries.
	AllocationRetries int
	Allocator         allocator.Config

	// Clock stamps records. The wall clock is used if it is nil.
	Clock clock.Clock

	// Collector tunes the record gauges. Defaults apply if it is nil.
	Collector *collector.Config
}

// Manager is the address space manager.
// This is the high-level object holding and initializing the store and
// every subsystem working on it.
type Manager struct {
	config Config

	store      *store.MemoryStore
	db         *persist.DB
	registry   *registry.Registry
	addresses  *addresses.Addresses
	allocator  *allocator.Allocator
	interfaces *interfaces.Interfaces
	hosts      *hosts.Hosts
	collector  *collector.Collector
}

// New creates a Manager, restoring its state from the state file if one
// is configured.
func New(ctx context.Context, config *Config) (*Manager, error) {
	cfg := *config
	if cfg.AllocationRetries == 0 {
		cfg.AllocationRetries = DefaultAllocationRetries
	} else if cfg.AllocationRetries < 0 {
		cfg.AllocationRetries = 0
	}

	s := store.NewMemoryStore(cfg.Clock)
	m := &Manager{
		config:     cfg,
		store:      s,
		registry:   registry.New(s),
		addresses:  addresses.New(s),
		allocator:  allocator.New(s, cfg.Foundations, cfg.Allocator),
		interfaces: interfaces.New(s),
		hosts:      hosts.New(s, cfg.Zones),
		collector:  collector.New(s, cfg.Collector),
	}

	if cfg.StateFile != "" {
		db, err := persist.Open(cfg.StateFile)
		if err != nil {
			s.Close()
			return nil, err
		}
		if _, err := db.Restore(ctx, s); err != nil {
			db.Close()
			s.Close()
			return nil, err
		}
		m.db = db
	}
	return m, nil
}

// Store returns the store the manager works on.
func (m *Manager) Store() *store.MemoryStore {
	return m.store
}

// Run keeps the state file in sync with the store and the record gauges
// up to date until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		_ = m.collector.Run(log.WithModule(ctx, "collector"))
	}()
	defer func() {
		cancel()
		<-collectorDone
	}()

	if m.db == nil {
		<-ctx.Done()
		return nil
	}
	if err := m.db.Run(ctx, m.store); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Stats returns the record counts of the latest collection pass.
func (m *Manager) Stats() collector.Counts {
	return m.collector.Info()
}

// Stop releases the store and the state file. Run must have returned.
func (m *Manager) Stop() error {
	var err error
	if m.db != nil {
		err = m.db.Close()
	}
	if cerr := m.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// authorize consults the authorizer for a mutating operation. A refusal
// is a PermissionDenied error and nothing must be written.
func (m *Manager) authorize(ctx context.Context, operation, action string, targetIDs ...string) error {
	if m.config.Authorizer == nil {
		return nil
	}
	caller := CallerFrom(ctx)
	ok, err := m.config.Authorizer.Authorize(ctx, caller, operation, targetIDs, action)
	if err != nil {
		return pkgerrors.Wrapf(err, "authorizing %s", operation)
	}
	if !ok {
		log.G(ctx).WithFields(logrus.Fields{
			"caller":    caller,
			"operation": operation,
			"targets":   targetIDs,
		}).Warn("operation refused")
		return errors.ErrPermissionDenied(caller, operation)
	}
	return nil
}
