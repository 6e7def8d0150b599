package allocator

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/store"
)

// fakeFoundations reports the foundations in its set as container
// foundations.
type fakeFoundations struct {
	containers map[string]bool
	err        error
}

func (f *fakeFoundations) IsContainerFoundation(_ context.Context, id string) (bool, error) {
	return f.containers[id], f.err
}

var _ = Describe("Allocator", func() {
	var (
		ctx         context.Context
		s           *store.MemoryStore
		reg         *registry.Registry
		foundations *fakeFoundations
		config      Config
		a           *Allocator
	)

	newBlock := func(subnet string, prefix int, gateway *big.Int) *api.AddressBlock {
		b, err := reg.Create(ctx, registry.BlockSpec{
			SiteID:        "site1",
			Name:          fmt.Sprintf("b%d", prefix),
			Subnet:        subnet,
			Prefix:        prefix,
			GatewayOffset: gateway,
		})
		Expect(err).ToNot(HaveOccurred())
		return b
	}

	next := func(blockID string) (*api.BaseAddress, error) {
		return a.NextAddress(ctx, Request{
			BlockID:       blockID,
			NetworkedID:   "host1",
			InterfaceName: "eth0",
		})
	}

	drain := func(blockID string) []int64 {
		var offsets []int64
		for {
			rec, err := next(blockID)
			if err != nil {
				Expect(errors.IsErrExhausted(err)).To(BeTrue(), "unexpected error %v", err)
				return offsets
			}
			offsets = append(offsets, rec.Placement.Offset.Int64())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemoryStore(nil)
		reg = registry.New(s)
		foundations = &fakeFoundations{containers: map[string]bool{"docker1": true}}
		config = Config{Rand: rand.New(rand.NewSource(1))}

		Expect(s.Update(func(tx store.Tx) error {
			if err := store.CreateNetworked(tx, &api.Networked{ID: "host1", SiteID: "site1", Hostname: "web01"}); err != nil {
				return err
			}
			return store.CreateNetworked(tx, &api.Networked{
				ID:        "pod1",
				SiteID:    "site1",
				Hostname:  "pod01",
				Kind:      api.NetworkedKindStructure,
				Structure: &api.Structure{FoundationID: "docker1"},
			})
		})).To(Succeed())
	})

	JustBeforeEach(func() {
		a = New(s, foundations, config)
	})

	AfterEach(func() {
		s.Close()
	})

	Context("on small blocks", func() {
		It("hands out the two usable offsets of a /30", func() {
			b := newBlock("10.0.0.0", 30, nil)
			Expect(drain(b.ID)).To(ConsistOf(int64(1), int64(2)))
		})

		It("hands out both offsets of a /31", func() {
			b := newBlock("10.0.0.0", 31, nil)
			Expect(drain(b.ID)).To(ConsistOf(int64(0), int64(1)))
		})

		It("never hands out the gateway", func() {
			b := newBlock("10.0.0.0", 29, big.NewInt(1))
			Expect(drain(b.ID)).To(ConsistOf(int64(2), int64(3), int64(4), int64(5), int64(6)))
		})

		It("skips occupied offsets", func() {
			b := newBlock("10.0.0.0", 29, nil)
			Expect(s.Update(func(tx store.Tx) error {
				for i, off := range []int64{1, 3, 5} {
					r := api.NewReservedAddress(b.ID, big.NewInt(off), "printer")
					r.ID = fmt.Sprintf("r%d", i)
					if err := store.CreateAddress(tx, r); err != nil {
						return err
					}
				}
				return nil
			})).To(Succeed())
			Expect(drain(b.ID)).To(ConsistOf(int64(2), int64(4), int64(6)))
		})

		It("picks at random", func() {
			b := newBlock("10.0.0.0", 16, nil)
			var offsets []int64
			for i := 0; i < 10; i++ {
				rec, err := next(b.ID)
				Expect(err).ToNot(HaveOccurred())
				offsets = append(offsets, rec.Placement.Offset.Int64())
			}
			Expect(offsets).ToNot(Equal([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
		})

		It("counts exhaustion", func() {
			b := newBlock("10.0.0.0", 30, nil)
			before := testutil.ToFloat64(exhaustionsTotal)
			drain(b.ID)
			Expect(testutil.ToFloat64(exhaustionsTotal)).To(Equal(before + 1))
		})
	})

	Context("past the enumeration cutoff", func() {
		BeforeEach(func() {
			config.EnumerationCutoff = 4
		})

		It("allocates inside a /64", func() {
			b := newBlock("2001:db8::", 64, nil)
			usable, err := registry.UsableOffsets(b)
			Expect(err).ToNot(HaveOccurred())
			for i := 0; i < 20; i++ {
				rec, err := next(b.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(usable.Contains(rec.Placement.Offset)).To(BeTrue())
			}
		})

		It("falls back to scanning when sampling is disabled", func() {
			config.SampleAttempts = -1
			b := newBlock("10.0.0.0", 29, big.NewInt(6))
			Expect(drain(b.ID)).To(ConsistOf(int64(1), int64(2), int64(3), int64(4), int64(5)))
		})
	})

	Context("on container foundations", func() {
		It("delegates the allocation", func() {
			b := newBlock("10.0.0.0", 24, nil)
			rec, err := a.NextAddress(ctx, Request{BlockID: b.ID, NetworkedID: "pod1", InterfaceName: "eth0"})
			Expect(err).ToNot(HaveOccurred())
			Expect(rec).To(BeNil())

			var n int
			s.View(func(tx store.ReadTx) {
				n, err = store.CountAddresses(tx, store.ByAddressBlock(b.ID))
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("surfaces resolver failures", func() {
			foundations.err = fmt.Errorf("foundation backend down")
			b := newBlock("10.0.0.0", 24, nil)
			_, err := a.NextAddress(ctx, Request{BlockID: b.ID, NetworkedID: "pod1", InterfaceName: "eth0"})
			Expect(err).To(MatchError("foundation backend down"))
		})
	})

	It("reports unknown blocks and hosts", func() {
		_, err := next("missing")
		Expect(errors.IsErrNotFound(err)).To(BeTrue())

		b := newBlock("10.0.0.0", 24, nil)
		_, err = a.NextAddress(ctx, Request{BlockID: b.ID, NetworkedID: "nobody", InterfaceName: "eth0"})
		Expect(errors.IsErrNotFound(err)).To(BeTrue())
	})

	It("fails with a conflict when the offset is taken before commit", func() {
		b := newBlock("10.0.0.0", 24, nil)
		a.beforeCommit = func(offset *big.Int) {
			Expect(s.Update(func(tx store.Tx) error {
				r := api.NewReservedAddress(b.ID, offset, "racer")
				r.ID = "racer"
				return store.CreateAddress(tx, r)
			})).To(Succeed())
		}
		before := testutil.ToFloat64(conflictsTotal)

		_, err := next(b.ID)
		Expect(errors.IsErrConflict(err)).To(BeTrue())
		Expect(errors.IsRetryable(err)).To(BeTrue())
		Expect(testutil.ToFloat64(conflictsTotal)).To(Equal(before + 1))

		a.beforeCommit = nil
		rec, err := next(b.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Placement.Offset.Int64()).ToNot(BeZero())
	})
})
