package store

import (
	"errors"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/contractor/addrspace/api"
	events "github.com/docker/go-events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(id, site, name, subnet string, prefix int, max string) *api.AddressBlock {
	return &api.AddressBlock{
		ID:         id,
		SiteID:     site,
		Name:       name,
		Subnet:     netip.MustParseAddr(subnet),
		Prefix:     prefix,
		MaxAddress: netip.MustParseAddr(max),
	}
}

func setupTestStore(t *testing.T, s *MemoryStore) {
	err := s.Update(func(tx Tx) error {
		for _, b := range []*api.AddressBlock{
			testBlock("b1", "site1", "lan", "10.0.0.0", 24, "10.0.0.255"),
			testBlock("b2", "site1", "dmz", "10.0.2.0", 23, "10.0.3.255"),
			testBlock("b3", "site2", "lan", "10.0.0.0", 16, "10.0.255.255"),
			testBlock("b4", "site1", "v6", "2001:db8::", 64, "2001:db8::ffff:ffff:ffff:ffff"),
		} {
			if err := CreateAddressBlock(tx, b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStoreAddressBlock(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	s.View(func(readTx ReadTx) {
		allBlocks, err := FindAddressBlocks(readTx, All)
		assert.NoError(t, err)
		assert.Empty(t, allBlocks)
	})

	setupTestStore(t, s)

	err := s.Update(func(tx Tx) error {
		allBlocks, err := FindAddressBlocks(tx, All)
		assert.NoError(t, err)
		assert.Len(t, allBlocks, 4)

		assert.Equal(t, ErrExist, CreateAddressBlock(tx, testBlock("b1", "site3", "x", "192.168.0.0", 24, "192.168.0.255")), "duplicate IDs must be rejected")

		err = CreateAddressBlock(tx, testBlock("b5", "site1", "lan", "192.168.0.0", 24, "192.168.0.255"))
		assert.True(t, errors.Is(err, ErrNameConflict))

		err = CreateAddressBlock(tx, testBlock("b5", "site1", "other", "10.0.0.0", 25, "10.0.0.127"))
		assert.True(t, errors.Is(err, ErrIntervalConflict))
		assert.True(t, IsConflict(err))
		return nil
	})
	assert.NoError(t, err)

	s.View(func(readTx ReadTx) {
		b := GetAddressBlock(readTx, "b1")
		require.NotNil(t, b)
		assert.Equal(t, "lan", b.Name)
		assert.Nil(t, GetAddressBlock(readTx, "nope"))

		assert.Equal(t, "b3", GetAddressBlockByName(readTx, "site2", "lan").ID)
		assert.Nil(t, GetAddressBlockByName(readTx, "site2", "dmz"))

		site1, err := FindAddressBlocks(readTx, BySite("site1"))
		assert.NoError(t, err)
		assert.Len(t, site1, 3)

		_, err = FindAddressBlocks(readTx, ByNetwork("n1"))
		assert.Equal(t, ErrInvalidFindBy, err)
	})
}

func TestAddressBlocksBelow(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	s.View(func(readTx ReadTx) {
		below, err := AddressBlocksBelow(readTx, "site1", netip.MustParseAddr("10.0.3.0"), netip.MustParseAddr("10.0.3.255"))
		require.NoError(t, err)
		require.Len(t, below, 2)
		assert.Equal(t, "b2", below[0].ID)
		assert.Equal(t, "b1", below[1].ID)

		below, err = AddressBlocksBelow(readTx, "site1", netip.MustParseAddr("9.0.0.0"), netip.MustParseAddr("9.255.255.255"))
		require.NoError(t, err)
		assert.Empty(t, below)

		// v6 keys never leak into a v4 walk and the other way round.
		below, err = AddressBlocksBelow(readTx, "site1", netip.MustParseAddr("2001:db8::"), netip.MustParseAddr("2001:db8::1"))
		require.NoError(t, err)
		require.Len(t, below, 1)
		assert.Equal(t, "b4", below[0].ID)
	})
}

func TestAddressBlocksContaining(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	s.View(func(readTx ReadTx) {
		blocks, err := AddressBlocksContaining(readTx, netip.MustParseAddr("10.0.0.7"))
		require.NoError(t, err)
		ids := []string{}
		for _, b := range blocks {
			ids = append(ids, b.ID)
		}
		assert.ElementsMatch(t, []string{"b1", "b3"}, ids)

		blocks, err = AddressBlocksContaining(readTx, netip.MustParseAddr("10.0.1.7"))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "b3", blocks[0].ID)

		blocks, err = AddressBlocksContaining(readTx, netip.MustParseAddr("172.16.0.1"))
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})
}

func TestStoreAddress(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	host := api.NewHostAddress("b1", big.NewInt(5), &api.HostAddress{NetworkedID: "h1", InterfaceName: "eth0", IsPrimary: true})
	host.ID = "a1"
	reserved := api.NewReservedAddress("b1", big.NewInt(6), "printer")
	reserved.ID = "a2"
	dynamic := api.NewDynamicAddress("b1", big.NewInt(7), "")
	dynamic.ID = "a3"
	alias := &api.BaseAddress{
		ID:        "a4",
		Kind:      api.AddressKindAddress,
		Placement: api.AliasOf("a1"),
		Address:   &api.HostAddress{NetworkedID: "h1", InterfaceName: "eth0:1"},
	}

	err := s.Update(func(tx Tx) error {
		for _, a := range []*api.BaseAddress{host, reserved, dynamic, alias} {
			if err := CreateAddress(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.Update(func(tx Tx) error {
		dup := api.NewReservedAddress("b1", big.NewInt(5), "again")
		dup.ID = "a5"
		return CreateAddress(tx, dup)
	})
	assert.True(t, errors.Is(err, ErrOffsetConflict))

	s.View(func(readTx ReadTx) {
		assert.Equal(t, host, GetAddress(readTx, "a1"))
		assert.Equal(t, "a2", GetAddressAt(readTx, "b1", big.NewInt(6)).ID)
		assert.Nil(t, GetAddressAt(readTx, "b1", big.NewInt(8)))

		inBlock, err := FindAddresses(readTx, ByAddressBlock("b1"))
		assert.NoError(t, err)
		assert.Len(t, inBlock, 3, "aliases hold no offset")

		n, err := CountAddresses(readTx, ByBlockKind("b1", api.AddressKindReserved))
		assert.NoError(t, err)
		assert.Equal(t, 1, n)

		owned, err := FindAddresses(readTx, ByNetworked("h1"))
		assert.NoError(t, err)
		assert.Len(t, owned, 2)

		aliases, err := FindAddresses(readTx, ByAliasOf("a1"))
		assert.NoError(t, err)
		require.Len(t, aliases, 1)
		assert.Equal(t, "a4", aliases[0].ID)

		_, err = CountAddresses(readTx, BySite("site1"))
		assert.Equal(t, ErrInvalidFindBy, err)
	})

	// Moving an address frees its old offset.
	err = s.Update(func(tx Tx) error {
		a := GetAddress(tx, "a3")
		a.Placement.Offset = big.NewInt(9)
		if err := UpdateAddress(tx, a); err != nil {
			return err
		}
		assert.Nil(t, GetAddressAt(tx, "b1", big.NewInt(7)))
		return DeleteAddress(tx, "a2")
	})
	require.NoError(t, err)

	s.View(func(readTx ReadTx) {
		assert.Nil(t, GetAddress(readTx, "a2"))
		assert.Equal(t, "a3", GetAddressAt(readTx, "b1", big.NewInt(9)).ID)
	})
}

func TestStoreNetworked(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	err := s.Update(func(tx Tx) error {
		assert.NoError(t, CreateNetworked(tx, &api.Networked{ID: "h1", SiteID: "site1", Hostname: "web01"}))
		assert.NoError(t, CreateNetworked(tx, &api.Networked{
			ID:        "h2",
			Kind:      api.NetworkedKindStructure,
			SiteID:    "site1",
			Hostname:  "db01",
			Structure: &api.Structure{FoundationID: "f1"},
		}))
		assert.NoError(t, CreateNetworked(tx, &api.Networked{ID: "h3", SiteID: "site2", Hostname: "web01"}))

		err := CreateNetworked(tx, &api.Networked{ID: "h4", SiteID: "site1", Hostname: "WEB01"})
		assert.True(t, errors.Is(err, ErrNameConflict), "hostnames are unique per site ignoring case")
		return nil
	})
	require.NoError(t, err)

	s.View(func(readTx ReadTx) {
		assert.Equal(t, "h1", GetNetworkedByHostname(readTx, "site1", "Web01").ID)

		onFoundation, err := FindNetworked(readTx, ByFoundation("f1"))
		assert.NoError(t, err)
		require.Len(t, onFoundation, 1)
		assert.Equal(t, "h2", onFoundation[0].ID)

		site1, err := FindNetworked(readTx, BySite("site1"))
		assert.NoError(t, err)
		assert.Len(t, site1, 2)
	})

	err = s.Update(func(tx Tx) error {
		return DeleteNetworked(tx, "missing")
	})
	assert.Equal(t, ErrNotExist, err)
}

func TestStoreNetworkInterface(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	eth0 := &api.NetworkInterface{
		ID:        "i1",
		Kind:      api.InterfaceKindReal,
		Name:      "eth0",
		NetworkID: "n1",
		Real:      &api.RealInterface{FoundationID: "f1", PhysicalLocation: "eth0", MAC: "aa:bb:cc:dd:ee:ff"},
	}
	bond := &api.NetworkInterface{
		ID:         "i2",
		Kind:       api.InterfaceKindAggregated,
		Name:       "bond0",
		NetworkID:  "n1",
		Abstract:   &api.AbstractInterface{NetworkedID: "h1"},
		Aggregated: &api.Aggregation{MasterID: "i1"},
	}

	err := s.Update(func(tx Tx) error {
		assert.NoError(t, CreateNetworkInterface(tx, eth0))
		assert.NoError(t, CreateNetworkInterface(tx, bond))

		err := CreateNetworkInterface(tx, &api.NetworkInterface{
			ID:   "i3",
			Kind: api.InterfaceKindReal,
			Name: "eth1",
			Real: &api.RealInterface{FoundationID: "f1", PhysicalLocation: "eth0"},
		})
		assert.True(t, errors.Is(err, ErrLocationConflict))

		err = CreateNetworkInterface(tx, &api.NetworkInterface{
			ID:   "i3",
			Kind: api.InterfaceKindReal,
			Name: "eth0",
			Real: &api.RealInterface{FoundationID: "f2", PhysicalLocation: "eth0", MAC: "aa:bb:cc:dd:ee:ff"},
		})
		assert.True(t, errors.Is(err, ErrMACConflict))
		return nil
	})
	require.NoError(t, err)

	s.View(func(readTx ReadTx) {
		byNetwork, err := FindNetworkInterfaces(readTx, ByNetwork("n1"))
		assert.NoError(t, err)
		assert.Len(t, byNetwork, 2)

		real, err := FindNetworkInterfaces(readTx, ByFoundation("f1"))
		assert.NoError(t, err)
		require.Len(t, real, 1)
		assert.Equal(t, eth0, real[0])

		abstract, err := FindNetworkInterfaces(readTx, ByNetworked("h1"))
		assert.NoError(t, err)
		require.Len(t, abstract, 1)
		assert.Equal(t, "bond0", abstract[0].Name)
	})
}

func TestFindByBonding(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	bond := &api.NetworkInterface{
		ID:         "b1",
		Kind:       api.InterfaceKindAggregated,
		Name:       "bond0",
		NetworkID:  "n1",
		Abstract:   &api.AbstractInterface{NetworkedID: "h1"},
		Aggregated: &api.Aggregation{MasterID: "i1", SlaveIDs: []string{"i2", "i3"}},
	}
	require.NoError(t, s.Update(func(tx Tx) error {
		return CreateNetworkInterface(tx, bond)
	}))

	bondsOf := func(id string) []string {
		var names []string
		s.View(func(readTx ReadTx) {
			found, err := FindNetworkInterfaces(readTx, ByBonding(id))
			require.NoError(t, err)
			for _, i := range found {
				names = append(names, i.Name)
			}
		})
		return names
	}
	assert.Equal(t, []string{"bond0"}, bondsOf("i1"))
	assert.Equal(t, []string{"bond0"}, bondsOf("i2"))
	assert.Equal(t, []string{"bond0"}, bondsOf("i3"))
	assert.Empty(t, bondsOf("b1"))
	assert.Empty(t, bondsOf("i"))

	bond = bond.Copy()
	bond.Aggregated.SlaveIDs = []string{"i4"}
	require.NoError(t, s.Update(func(tx Tx) error {
		return UpdateNetworkInterface(tx, bond)
	}))
	assert.Empty(t, bondsOf("i2"))
	assert.Equal(t, []string{"bond0"}, bondsOf("i4"))

	require.NoError(t, s.Update(func(tx Tx) error {
		return DeleteNetworkInterface(tx, "b1")
	}))
	assert.Empty(t, bondsOf("i1"))
}

func TestStoreNetworkAddressBlock(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	err := s.Update(func(tx Tx) error {
		assert.NoError(t, CreateNetwork(tx, &api.Network{ID: "n1", SiteID: "site1", Name: "prod"}))
		assert.True(t, errors.Is(CreateNetwork(tx, &api.Network{ID: "n2", SiteID: "site1", Name: "prod"}), ErrNameConflict))

		assert.NoError(t, CreateNetworkAddressBlock(tx, &api.NetworkAddressBlock{ID: "j1", NetworkID: "n1", AddressBlockID: "b1", VLAN: 10, VLANTagged: true}))
		err := CreateNetworkAddressBlock(tx, &api.NetworkAddressBlock{ID: "j2", NetworkID: "n1", AddressBlockID: "b1"})
		assert.True(t, errors.Is(err, ErrNameConflict))
		return nil
	})
	require.NoError(t, err)

	s.View(func(readTx ReadTx) {
		j := GetNetworkAddressBlockByPair(readTx, "n1", "b1")
		require.NotNil(t, j)
		assert.Equal(t, 10, j.VLAN)
		assert.Nil(t, GetNetworkAddressBlockByPair(readTx, "n1", "b2"))

		joins, err := FindNetworkAddressBlocks(readTx, ByAddressBlock("b1"))
		assert.NoError(t, err)
		assert.Len(t, joins, 1)

		networks, err := FindNetworks(readTx, BySite("site1"))
		assert.NoError(t, err)
		assert.Len(t, networks, 1)
	})
}

func TestFailedTransaction(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	// Create one block
	err := s.Update(func(tx Tx) error {
		return CreateAddressBlock(tx, testBlock("b1", "site1", "lan", "10.0.0.0", 24, "10.0.0.255"))
	})
	assert.NoError(t, err)

	// Create a second block, but then roll back the transaction
	err = s.Update(func(tx Tx) error {
		assert.NoError(t, CreateAddressBlock(tx, testBlock("b2", "site1", "dmz", "10.0.1.0", 24, "10.0.1.255")))
		return errors.New("rollback")
	})
	assert.Error(t, err)

	s.View(func(tx ReadTx) {
		foundBlocks, err := FindAddressBlocks(tx, All)
		assert.NoError(t, err)
		assert.Len(t, foundBlocks, 1)
		assert.Nil(t, GetAddressBlock(tx, "b2"))
	})
	assert.Equal(t, uint64(1), s.Version())
}

func TestVersion(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	b := testBlock("b1", "site1", "lan", "10.0.0.0", 24, "10.0.0.255")
	err := s.Update(func(tx Tx) error {
		return CreateAddressBlock(tx, b)
	})
	require.NoError(t, err)

	var retrieved, retrieved2 *api.AddressBlock
	s.View(func(tx ReadTx) {
		retrieved = GetAddressBlock(tx, "b1")
		retrieved2 = GetAddressBlock(tx, "b1")
	})
	assert.Equal(t, uint64(1), retrieved.Meta.Version)

	// Try an update with the same version
	retrieved.Name = "renamed"
	err = s.Update(func(tx Tx) error {
		return UpdateAddressBlock(tx, retrieved)
	})
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), retrieved.Meta.Version)

	// Try an update with an old version
	retrieved2.Name = "stale"
	err = s.Update(func(tx Tx) error {
		return UpdateAddressBlock(tx, retrieved2)
	})
	assert.Equal(t, ErrSequenceConflict, err)
	assert.True(t, IsConflict(err))
}

func TestTimestamps(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := fakeclock.NewFakeClock(start)
	s := NewMemoryStore(clk)
	defer s.Close()

	n := &api.Network{ID: "n1", SiteID: "site1", Name: "prod"}
	err := s.Update(func(tx Tx) error {
		return CreateNetwork(tx, n)
	})
	require.NoError(t, err)

	clk.Increment(time.Minute)

	var retrieved *api.Network
	err = s.Update(func(tx Tx) error {
		retrieved = GetNetwork(tx, "n1")
		retrieved.MTU = 9000
		return UpdateNetwork(tx, retrieved)
	})
	require.NoError(t, err)

	assert.Equal(t, start, retrieved.Meta.CreatedAt)
	assert.Equal(t, start.Add(time.Minute), retrieved.Meta.UpdatedAt)
}

func TestWatchEvents(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	ch, cancel := s.WatchQueue().CallbackWatch(events.MatcherFunc(func(e events.Event) bool {
		return true
	}))
	defer cancel()

	err := s.Update(func(tx Tx) error {
		return CreateNetwork(tx, &api.Network{ID: "n1", SiteID: "site1", Name: "prod"})
	})
	require.NoError(t, err)

	next := func() events.Event {
		select {
		case e := <-ch:
			return e
		case <-time.After(5 * time.Second):
			t.Fatal("no event delivered")
		}
		return nil
	}

	created, ok := next().(api.Event)
	require.True(t, ok)
	assert.Equal(t, api.ActionCreate, created.Action)
	assert.Equal(t, "network", created.Table)
	assert.Equal(t, "n1", created.ID)
	assert.Equal(t, "prod", created.Object.(*api.Network).Name)

	commit, ok := next().(api.EventCommit)
	require.True(t, ok)
	assert.Equal(t, uint64(1), commit.Version)
}

func TestStoreSaveRestore(t *testing.T) {
	s1 := NewMemoryStore(nil)
	defer s1.Close()
	setupTestStore(t, s1)

	err := s1.Update(func(tx Tx) error {
		a := api.NewReservedAddress("b1", big.NewInt(1), "gateway")
		a.ID = "a1"
		if err := CreateAddress(tx, a); err != nil {
			return err
		}
		return CreateNetwork(tx, &api.Network{ID: "n1", SiteID: "site1", Name: "prod"})
	})
	require.NoError(t, err)

	snapshot, err := s1.Save()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snapshot.Version)
	assert.Len(t, snapshot.AddressBlocks, 4)
	assert.Len(t, snapshot.Addresses, 1)
	assert.Len(t, snapshot.Networks, 1)

	s2 := NewMemoryStore(nil)
	defer s2.Close()
	err = s2.Update(func(tx Tx) error {
		return CreateNetwork(tx, &api.Network{ID: "stale", SiteID: "site9", Name: "gone"})
	})
	require.NoError(t, err)

	require.NoError(t, s2.Restore(snapshot))
	assert.Equal(t, uint64(2), s2.Version())

	s1.View(func(tx1 ReadTx) {
		s2.View(func(tx2 ReadTx) {
			blocks1, err := FindAddressBlocks(tx1, All)
			assert.NoError(t, err)
			blocks2, err := FindAddressBlocks(tx2, All)
			assert.NoError(t, err)
			assert.Equal(t, blocks1, blocks2)

			assert.Equal(t, GetAddress(tx1, "a1"), GetAddress(tx2, "a1"))
			assert.Nil(t, GetNetwork(tx2, "stale"))
			assert.NotNil(t, GetAddressAt(tx2, "b1", big.NewInt(1)))
		})
	})
}
