package allocator

import "github.com/prometheus/client_golang/prometheus"

var (
	allocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addrspace",
		Subsystem: "allocator",
		Name:      "allocations_total",
		Help:      "Addresses allocated from address blocks.",
	})
	conflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addrspace",
		Subsystem: "allocator",
		Name:      "conflicts_total",
		Help:      "Allocations that lost the offset to a concurrent writer.",
	})
	exhaustionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addrspace",
		Subsystem: "allocator",
		Name:      "exhaustions_total",
		Help:      "Allocations that found no free offset.",
	})
	delegationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "addrspace",
		Subsystem: "allocator",
		Name:      "delegations_total",
		Help:      "Allocations left to the addressing of container foundations.",
	})
)

func init() {
	prometheus.MustRegister(allocationsTotal, conflictsTotal, exhaustionsTotal, delegationsTotal)
}
