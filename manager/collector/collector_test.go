package collector

import (
	"context"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsAfterCommit(t *testing.T) {
	s := store.NewMemoryStore(nil)
	defer s.Close()

	c := New(s, &Config{Tick: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return c.Info().AddressKinds != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Info().Blocks)

	b := &api.AddressBlock{
		ID:         "b1",
		SiteID:     "s1",
		Name:       "lan",
		Subnet:     netip.MustParseAddr("10.0.0.0"),
		Prefix:     24,
		MaxAddress: netip.MustParseAddr("10.0.0.255"),
	}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateAddressBlock(tx, b); err != nil {
			return err
		}
		return store.CreateAddress(tx, &api.BaseAddress{
			ID:        "a1",
			Kind:      api.AddressKindReserved,
			Placement: api.Placement{Kind: api.PlacementOwned, BlockID: "b1", Offset: big.NewInt(5)},
			Reserved:  &api.ReservedAddress{Reason: "printer"},
		})
	}))

	require.Eventually(t, func() bool {
		return c.Info().Blocks == 1
	}, 2*time.Second, 10*time.Millisecond)
	info := c.Info()
	assert.Equal(t, 1, info.AddressKinds[api.AddressKindReserved])
	assert.Equal(t, 0, info.Aliases)
	assert.Equal(t, s.Version(), info.Version)

	cancel()
	assert.NoError(t, <-done)
}
