// Package collector keeps gauges of the records held in the store.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/state/store"
	events "github.com/docker/go-events"
	metrics "github.com/docker/go-metrics"
)

var (
	recordsGauge   metrics.LabeledGauge
	addressesGauge metrics.LabeledGauge
)

func init() {
	ns := metrics.NewNamespace("addrspace", "collector", nil)
	recordsGauge = ns.NewLabeledGauge("records", "The number of records by table.", metrics.Unit(""), "table")
	addressesGauge = ns.NewLabeledGauge("addresses", "The number of addresses by kind.", metrics.Unit(""), "kind")
	metrics.Register(ns)
}

// Counts is what a collection pass found in the store.
type Counts struct {
	Version      uint64
	Blocks       int
	Networks     int
	Hosts        int
	Interfaces   int
	Aliases      int
	AddressKinds map[api.AddressKind]int
}

// Config is configuration of Collector.
type Config struct {
	// Tick bounds how often the store is counted while it changes.
	Tick time.Duration
}

// DefaultConfig returns default config for Collector
func DefaultConfig() *Config {
	return &Config{
		Tick: 5 * time.Second,
	}
}

// Collector counts the records of a store after it changes.
type Collector struct {
	store  *store.MemoryStore
	config *Config

	mu   sync.Mutex
	info Counts
}

// New returns a Collector over s.
func New(s *store.MemoryStore, c *Config) *Collector {
	if c == nil {
		c = DefaultConfig()
	}
	return &Collector{store: s, config: c}
}

// Run counts the store once, then again on the first tick after each
// commit, until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	eventq, cancel := c.store.WatchQueue().CallbackWatch(events.MatcherFunc(func(ev events.Event) bool {
		_, ok := ev.(api.EventCommit)
		return ok
	}))
	defer cancel()

	c.updateInfo(ctx)

	ticker := time.NewTicker(c.config.Tick)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case _, ok := <-eventq:
			if !ok {
				return nil
			}
			dirty = true
		case <-ticker.C:
			if dirty {
				c.updateInfo(ctx)
				dirty = false
			}
		case <-ctx.Done():
			log.G(ctx).Debug("collector: stop collector")
			return nil
		}
	}
}

func (c *Collector) updateInfo(ctx context.Context) {
	counts := Counts{AddressKinds: map[api.AddressKind]int{}}

	var err error
	c.store.View(func(tx store.ReadTx) {
		var (
			blocks     []*api.AddressBlock
			networks   []*api.Network
			hosts      []*api.Networked
			interfaces []*api.NetworkInterface
			addrs      []*api.BaseAddress
		)
		if blocks, err = store.FindAddressBlocks(tx, store.All); err != nil {
			return
		}
		if networks, err = store.FindNetworks(tx, store.All); err != nil {
			return
		}
		if hosts, err = store.FindNetworked(tx, store.All); err != nil {
			return
		}
		if interfaces, err = store.FindNetworkInterfaces(tx, store.All); err != nil {
			return
		}
		if addrs, err = store.FindAddresses(tx, store.All); err != nil {
			return
		}
		counts.Blocks = len(blocks)
		counts.Networks = len(networks)
		counts.Hosts = len(hosts)
		counts.Interfaces = len(interfaces)
		for _, a := range addrs {
			if a.Placement.Kind == api.PlacementAlias {
				counts.Aliases++
			}
			counts.AddressKinds[a.Kind]++
		}
	})
	if err != nil {
		log.G(ctx).WithError(err).Error("collector: failed to count records")
		return
	}
	counts.Version = c.store.Version()

	recordsGauge.WithValues("address_blocks").Set(float64(counts.Blocks))
	recordsGauge.WithValues("networks").Set(float64(counts.Networks))
	recordsGauge.WithValues("networked").Set(float64(counts.Hosts))
	recordsGauge.WithValues("network_interfaces").Set(float64(counts.Interfaces))
	for _, kind := range []api.AddressKind{api.AddressKindAddress, api.AddressKindReserved, api.AddressKindDynamic} {
		addressesGauge.WithValues(kind.String()).Set(float64(counts.AddressKinds[kind]))
	}
	addressesGauge.WithValues("alias").Set(float64(counts.Aliases))

	c.mu.Lock()
	c.info = counts
	c.mu.Unlock()
}

// Info returns the counts of the latest collection pass.
func (c *Collector) Info() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}
