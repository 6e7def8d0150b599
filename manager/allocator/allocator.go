package allocator

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSampleAttempts is the number of random candidates tried on
	// ranges too large to enumerate.
	DefaultSampleAttempts = 64
	// DefaultEnumerationCutoff is the largest usable range whose free set
	// is materialized.
	DefaultEnumerationCutoff = 1 << 20
)

// FoundationResolver tells the allocator which foundations manage their
// own addressing.
type FoundationResolver interface {
	IsContainerFoundation(ctx context.Context, foundationID string) (bool, error)
}

// Config tunes the allocator. Zero values take the defaults.
type Config struct {
	SampleAttempts    int
	EnumerationCutoff int64
	// Rand is the randomness source of picks. It is seeded from the clock
	// if nil.
	Rand *rand.Rand
}

// Request describes the address a host wants.
type Request struct {
	BlockID       string
	NetworkedID   string
	InterfaceName string
	SubInterface  *int
	IsPrimary     bool
}

// Allocator hands out free offsets of address blocks.
type Allocator struct {
	store       *store.MemoryStore
	foundations FoundationResolver
	config      Config

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand

	// beforeCommit runs between the pick and the write transaction.
	beforeCommit func(offset *big.Int)
}

// New returns an allocator over s. foundations may be nil when no host is
// built on a container foundation.
func New(s *store.MemoryStore, foundations FoundationResolver, config Config) *Allocator {
	if config.SampleAttempts < 0 {
		config.SampleAttempts = 0
	} else if config.SampleAttempts == 0 {
		config.SampleAttempts = DefaultSampleAttempts
	}
	if config.EnumerationCutoff <= 0 {
		config.EnumerationCutoff = DefaultEnumerationCutoff
	}
	rnd := config.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Allocator{
		store:       s,
		foundations: foundations,
		config:      config,
		rnd:         rnd,
	}
}

// NextAddress allocates a free offset of the requested block to the host
// and stores the address record. It returns nil and no error when the host
// is built on a container foundation, whose addressing is handled
// elsewhere.
//
// A concurrent allocation of the same offset fails the call with a
// conflict error; the caller retries.
func (a *Allocator) NextAddress(ctx context.Context, req Request) (*api.BaseAddress, error) {
	ctx = log.WithModule(ctx, "allocator")
	logger := log.G(ctx).WithFields(logrus.Fields{
		"block.id":     req.BlockID,
		"networked.id": req.NetworkedID,
	})

	var (
		block *api.AddressBlock
		host  *api.Networked
		taken = occupancy{}
		err   error
	)
	a.store.View(func(tx store.ReadTx) {
		host = store.GetNetworked(tx, req.NetworkedID)
		block = store.GetAddressBlock(tx, req.BlockID)
		if block == nil {
			return
		}
		var existing []*api.BaseAddress
		existing, err = store.FindAddresses(tx, store.ByAddressBlock(block.ID))
		for _, e := range existing {
			taken.add(e.Placement.Offset)
		}
	})
	if err != nil {
		return nil, errors.ErrInternal("reading occupants: %v", err)
	}
	if host == nil {
		return nil, errors.ErrNotFound("networked", req.NetworkedID)
	}

	if s, ok := host.AsStructure(); ok && a.foundations != nil {
		container, err := a.foundations.IsContainerFoundation(ctx, s.FoundationID)
		if err != nil {
			return nil, err
		}
		if container {
			delegationsTotal.Inc()
			logger.WithField("foundation.id", s.FoundationID).Debug("addressing left to container foundation")
			return nil, nil
		}
	}

	if block == nil {
		return nil, errors.ErrNotFound("address block", req.BlockID)
	}

	offset, err := a.pick(block, taken)
	if err != nil {
		if errors.IsErrExhausted(err) {
			exhaustionsTotal.Inc()
			logger.Warn("address block exhausted")
		}
		return nil, err
	}

	if a.beforeCommit != nil {
		a.beforeCommit(offset)
	}

	record := api.NewHostAddress(block.ID, offset, &api.HostAddress{
		NetworkedID:   req.NetworkedID,
		InterfaceName: req.InterfaceName,
		SubInterface:  req.SubInterface,
		IsPrimary:     req.IsPrimary,
	})
	err = a.store.Update(func(tx store.Tx) error {
		return addresses.CreateInTx(tx, record)
	})
	if err != nil {
		err = errors.FromStore(err)
		if errors.IsErrConflict(err) {
			conflictsTotal.Inc()
			logger.WithField("address.offset", offset).Debug("offset taken concurrently")
		}
		return nil, err
	}

	allocationsTotal.Inc()
	logger.WithFields(logrus.Fields{
		"address.id":     record.ID,
		"address.offset": offset,
	}).Debug("address allocated")
	return record, nil
}
