package interfaces

import (
	"context"
	"math/big"
	"net/netip"
	"testing"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	for in, want := range map[string]string{
		"aabb.ccdd.eeff":    "aa:bb:cc:dd:ee:ff",
		"AABBCCDDEEFF":      "aa:bb:cc:dd:ee:ff",
		"aa-bb-cc-dd-ee-ff": "aa:bb:cc:dd:ee:ff",
		"AA:BB:CC:dd:ee:ff": "aa:bb:cc:dd:ee:ff",
		" 00:11:22:33:44:55": "00:11:22:33:44:55",
	} {
		got, ok := NormalizeMAC(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{
		"zz:zz:zz:zz:zz:zz",
		"aabb.ccdd",
		"aa:bb:cc:dd:ee",
		"00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01",
		"",
	} {
		_, ok := NormalizeMAC(in)
		assert.False(t, ok, in)
	}
}

type fixture struct {
	store  *store.MemoryStore
	ifaces *Interfaces
	lan    *api.AddressBlock
	prod   *api.Network
	host   *api.Networked
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { s.Close() })

	reg := registry.New(s)
	lan, err := reg.Create(ctx, registry.BlockSpec{SiteID: "s1", Name: "lan", Subnet: "10.0.0.0/24", GatewayOffset: big.NewInt(1)})
	require.NoError(t, err)
	prod, err := reg.CreateNetwork(ctx, registry.NetworkSpec{SiteID: "s1", Name: "prod"})
	require.NoError(t, err)
	_, err = reg.AttachBlock(ctx, prod.ID, lan.ID, 20, true)
	require.NoError(t, err)

	host := &api.Networked{
		ID:        "h1",
		SiteID:    "s1",
		Hostname:  "web01",
		Kind:      api.NetworkedKindStructure,
		Structure: &api.Structure{FoundationID: "f1"},
	}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		return store.CreateNetworked(tx, host)
	}))
	return &fixture{store: s, ifaces: New(s), lan: lan, prod: prod, host: host}
}

func (f *fixture) real(name, location, mac string) *api.NetworkInterface {
	return &api.NetworkInterface{
		Kind:      api.InterfaceKindReal,
		Name:      name,
		NetworkID: f.prod.ID,
		Real:      &api.RealInterface{FoundationID: "f1", PhysicalLocation: location, MAC: mac},
	}
}

func (f *fixture) place(t *testing.T, a *api.BaseAddress) {
	require.NoError(t, f.store.Update(func(tx store.Tx) error {
		return store.CreateAddress(tx, a)
	}))
}

func TestCreateReal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eth0, err := f.ifaces.Create(ctx, f.real("eth0", "port 1", "aabb.ccdd.eeff"))
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", eth0.Real.MAC)

	got, err := f.ifaces.Get(ctx, eth0.ID)
	require.NoError(t, err)
	assert.Equal(t, eth0, got)

	_, err = f.ifaces.Create(ctx, f.real("eth1", "port 2", "zz:zz:zz:zz:zz:zz"))
	assert.Contains(t, errors.ValidationFields(err), "mac")

	_, err = f.ifaces.Create(ctx, f.real("eth1", "port 1", ""))
	assert.True(t, errors.IsErrConflict(err))

	_, err = f.ifaces.Create(ctx, f.real("eth1", "port 2", "AA-BB-CC-DD-EE-FF"))
	assert.True(t, errors.IsErrConflict(err))

	bad := f.real("-eth", "", "")
	bad.NetworkID = "missing"
	_, err = f.ifaces.Create(ctx, bad)
	fields := errors.ValidationFields(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "network")
	assert.Contains(t, fields, "physical_location")
}

func TestProvisioningFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eth0 := f.real("eth0", "port 1", "")
	eth0.Real.IsProvisioning = true
	eth0, err := f.ifaces.Create(ctx, eth0)
	require.NoError(t, err)

	eth1 := f.real("eth1", "port 2", "")
	eth1.Real.IsProvisioning = true
	_, err = f.ifaces.Create(ctx, eth1)
	assert.Contains(t, errors.ValidationFields(err), "is_provisioning")

	// updating the provisioning interface itself is fine
	eth0.Real.LinkName = "uplink"
	_, err = f.ifaces.Update(ctx, eth0)
	require.NoError(t, err)

	var prov *api.NetworkInterface
	f.store.View(func(tx store.ReadTx) {
		prov, err = ProvisioningInterfaceInTx(tx, "f1")
	})
	require.NoError(t, err)
	assert.Equal(t, "eth0", prov.Name)
}

func TestAggregated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eth0, err := f.ifaces.Create(ctx, f.real("eth0", "port 1", ""))
	require.NoError(t, err)
	eth1, err := f.ifaces.Create(ctx, f.real("eth1", "port 2", ""))
	require.NoError(t, err)

	bond := &api.NetworkInterface{
		Kind:       api.InterfaceKindAggregated,
		Name:       "bond0",
		NetworkID:  f.prod.ID,
		Abstract:   &api.AbstractInterface{NetworkedID: f.host.ID},
		Aggregated: &api.Aggregation{MasterID: eth0.ID, SlaveIDs: []string{eth1.ID, eth1.ID}},
	}
	_, err = f.ifaces.Create(ctx, bond)
	assert.Contains(t, errors.ValidationFields(err), "slaves")

	bond.Aggregated.SlaveIDs = []string{eth0.ID}
	_, err = f.ifaces.Create(ctx, bond)
	assert.Contains(t, errors.ValidationFields(err), "slaves")

	bond.Aggregated.MasterID = "missing"
	bond.Aggregated.SlaveIDs = []string{eth1.ID}
	_, err = f.ifaces.Create(ctx, bond)
	assert.Contains(t, errors.ValidationFields(err), "master")

	bond.Aggregated.MasterID = eth0.ID
	bond, err = f.ifaces.Create(ctx, bond)
	require.NoError(t, err)

	sub, err := Subclass(ctx, bond)
	require.NoError(t, err)
	assert.Equal(t, bond.Aggregated, sub)

	err = f.ifaces.Delete(ctx, eth1.ID)
	assert.Contains(t, errors.ValidationFields(err), "interface")
	err = f.ifaces.Delete(ctx, eth0.ID)
	assert.Contains(t, errors.ValidationFields(err), "interface")

	// dropping the slave from the bond frees it
	eth2, err := f.ifaces.Create(ctx, f.real("eth2", "port 3", ""))
	require.NoError(t, err)
	bond.Aggregated.SlaveIDs = []string{eth2.ID}
	bond, err = f.ifaces.Update(ctx, bond)
	require.NoError(t, err)
	require.NoError(t, f.ifaces.Delete(ctx, eth1.ID))
	err = f.ifaces.Delete(ctx, eth2.ID)
	assert.Contains(t, errors.ValidationFields(err), "interface")

	require.NoError(t, f.ifaces.Delete(ctx, bond.ID))
	require.NoError(t, f.ifaces.Delete(ctx, eth2.ID))
	assert.True(t, errors.IsErrNotFound(f.ifaces.Delete(ctx, eth1.ID)))

	list, err := f.ifaces.ListForHost(ctx, f.host.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "eth0", list[0].Name)
}

func TestAbstractNeedsStructure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Update(func(tx store.Tx) error {
		return store.CreateNetworked(tx, &api.Networked{ID: "h2", SiteID: "s1", Hostname: "plain01"})
	}))

	_, err := f.ifaces.Create(ctx, &api.NetworkInterface{
		Kind:      api.InterfaceKindAbstract,
		Name:      "lo0",
		NetworkID: f.prod.ID,
		Abstract:  &api.AbstractInterface{NetworkedID: "h2"},
	})
	assert.Contains(t, errors.ValidationFields(err), "networked")

	_, err = f.ifaces.Create(ctx, &api.NetworkInterface{
		Kind:      api.InterfaceKindAbstract,
		Name:      "lo0",
		NetworkID: f.prod.ID,
	})
	assert.Contains(t, errors.ValidationFields(err), "kind")
}

func TestSubclassFault(t *testing.T) {
	_, err := Subclass(context.Background(), &api.NetworkInterface{ID: "i1", Kind: api.InterfaceKindReal})
	assert.True(t, errors.IsErrInternal(err))
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	eth0, err := f.ifaces.Create(ctx, f.real("eth0", "port 1", "aabbccddeeff"))
	require.NoError(t, err)

	primary := api.NewHostAddress(f.lan.ID, big.NewInt(10), &api.HostAddress{NetworkedID: f.host.ID, InterfaceName: "eth0", IsPrimary: true})
	primary.ID = "a1"
	f.place(t, primary)
	other := api.NewHostAddress(f.lan.ID, big.NewInt(11), &api.HostAddress{NetworkedID: f.host.ID, InterfaceName: "eth1"})
	other.ID = "a2"
	f.place(t, other)
	alias := &api.BaseAddress{
		ID:        "a3",
		Kind:      api.AddressKindAddress,
		Placement: api.AliasOf("a1"),
		Address:   &api.HostAddress{NetworkedID: f.host.ID, InterfaceName: "eth0"},
	}
	f.place(t, alias)

	cfg, err := f.ifaces.Config(ctx, eth0.ID)
	require.NoError(t, err)
	assert.Equal(t, "eth0", cfg.Name)
	assert.Equal(t, "Real", cfg.Type)
	assert.Equal(t, "prod", cfg.Network)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.MAC)
	assert.Equal(t, "port 1", cfg.PhysicalLocation)

	require.Len(t, cfg.AddressList, 2)
	for _, a := range cfg.AddressList {
		assert.Equal(t, netip.MustParseAddr("10.0.0.10"), a.IP)
		require.NotNil(t, a.Gateway)
		assert.Equal(t, netip.MustParseAddr("10.0.0.1"), *a.Gateway)
		assert.Equal(t, 24, a.Prefix)
		require.NotNil(t, a.VLAN)
		assert.Equal(t, 20, *a.VLAN)
		assert.True(t, a.VLANTagged)
	}

	_, err = f.ifaces.Config(ctx, "missing")
	assert.True(t, errors.IsErrNotFound(err))
}
