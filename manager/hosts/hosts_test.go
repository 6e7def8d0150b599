package hosts

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zoneMap map[string]string

func (z zoneMap) ZoneFqdnForSite(_ context.Context, siteID string) (string, error) {
	if siteID == "broken" {
		return "", fmt.Errorf("zone backend down")
	}
	return z[siteID], nil
}

func newTestHosts(t *testing.T) (*Hosts, *store.MemoryStore) {
	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { s.Close() })
	return New(s, zoneMap{"s1": "example.com."}), s
}

func place(t *testing.T, s *store.MemoryStore, a *api.BaseAddress) {
	require.NoError(t, s.Update(func(tx store.Tx) error {
		return store.CreateAddress(tx, a)
	}))
}

func TestCreateNetworked(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHosts(t)

	web, err := h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "Web01"})
	require.NoError(t, err)
	assert.Equal(t, api.NetworkedKindPlain, web.Kind)

	_, err = h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "web01"})
	assert.True(t, errors.IsErrConflict(err))

	_, err = h.CreateNetworked(ctx, Spec{SiteID: "s2", Hostname: "web01"})
	assert.NoError(t, err)

	_, err = h.CreateNetworked(ctx, Spec{Hostname: "-web"})
	fields := errors.ValidationFields(err)
	assert.Contains(t, fields, "site")
	assert.Contains(t, fields, "hostname")

	box, err := h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "box01", FoundationID: "f1"})
	require.NoError(t, err)
	s, ok := box.AsStructure()
	require.True(t, ok)
	assert.Equal(t, "f1", s.FoundationID)

	got, err := h.GetByHostname(ctx, "s1", "WEB01")
	require.NoError(t, err)
	assert.Equal(t, web.ID, got.ID)

	list, err := h.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Web01", list[0].Hostname)
}

func TestFQDN(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHosts(t)

	web, err := h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "web01"})
	require.NoError(t, err)
	fqdn, err := h.FQDN(ctx, web.ID)
	require.NoError(t, err)
	assert.Equal(t, "web01.example.com", fqdn)

	db, err := h.CreateNetworked(ctx, Spec{SiteID: "s2", Hostname: "db01"})
	require.NoError(t, err)
	fqdn, err = h.FQDN(ctx, db.ID)
	require.NoError(t, err)
	assert.Equal(t, "db01", fqdn)

	lost, err := h.CreateNetworked(ctx, Spec{SiteID: "broken", Hostname: "lost01"})
	require.NoError(t, err)
	_, err = h.FQDN(ctx, lost.ID)
	assert.EqualError(t, err, "zone backend down")

	_, err = h.FQDN(ctx, "missing")
	assert.True(t, errors.IsErrNotFound(err))
}

func TestAddressesOfHost(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHosts(t)
	reg := registry.New(s)

	lan, err := reg.Create(ctx, registry.BlockSpec{SiteID: "s1", Name: "lan", Subnet: "10.0.0.0/24"})
	require.NoError(t, err)
	box, err := h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "box01", FoundationID: "f1"})
	require.NoError(t, err)

	primary, err := h.PrimaryAddress(ctx, box.ID)
	require.NoError(t, err)
	assert.Nil(t, primary)
	prov, err := h.ProvisioningAddress(ctx, box.ID)
	require.NoError(t, err)
	assert.Nil(t, prov)

	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateNetwork(tx, &api.Network{ID: "n1", SiteID: "s1", Name: "prod"}); err != nil {
			return err
		}
		return store.CreateNetworkInterface(tx, &api.NetworkInterface{
			ID:        "i1",
			Kind:      api.InterfaceKindReal,
			Name:      "eth1",
			NetworkID: "n1",
			Real:      &api.RealInterface{FoundationID: "f1", PhysicalLocation: "port 2", IsProvisioning: true},
		})
	}))

	sub := 5
	a1 := api.NewHostAddress(lan.ID, big.NewInt(10), &api.HostAddress{NetworkedID: box.ID, InterfaceName: "eth0", IsPrimary: true})
	a1.ID = "a1"
	a2 := api.NewHostAddress(lan.ID, big.NewInt(11), &api.HostAddress{NetworkedID: box.ID, InterfaceName: "eth1", SubInterface: &sub})
	a2.ID = "a2"
	a3 := api.NewHostAddress(lan.ID, big.NewInt(12), &api.HostAddress{NetworkedID: box.ID, InterfaceName: "eth1"})
	a3.ID = "a3"
	place(t, s, a1)
	place(t, s, a2)
	place(t, s, a3)

	primary, err = h.PrimaryAddress(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", primary.ID)

	iface, err := h.ProvisioningInterface(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "eth1", iface.Name)

	prov, err = h.ProvisioningAddress(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "a3", prov.ID)

	_, err = h.PrimaryAddress(ctx, "missing")
	assert.True(t, errors.IsErrNotFound(err))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHosts(t)
	reg := registry.New(s)

	lan, err := reg.Create(ctx, registry.BlockSpec{SiteID: "s1", Name: "lan", Subnet: "10.0.0.0/24"})
	require.NoError(t, err)
	box, err := h.CreateNetworked(ctx, Spec{SiteID: "s1", Hostname: "box01", FoundationID: "f1"})
	require.NoError(t, err)

	a1 := api.NewHostAddress(lan.ID, big.NewInt(10), &api.HostAddress{NetworkedID: box.ID, InterfaceName: "eth0"})
	a1.ID = "a1"
	place(t, s, a1)
	place(t, s, &api.BaseAddress{
		ID:        "a2",
		Kind:      api.AddressKindAddress,
		Placement: api.AliasOf("a1"),
		Address:   &api.HostAddress{NetworkedID: box.ID, InterfaceName: "eth0:1"},
	})
	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateNetworkInterface(tx, &api.NetworkInterface{
			ID: "lo", Kind: api.InterfaceKindAbstract, Name: "lo0", NetworkID: "n1",
			Abstract: &api.AbstractInterface{NetworkedID: box.ID},
		}); err != nil {
			return err
		}
		return store.CreateNetworkInterface(tx, &api.NetworkInterface{
			ID: "bond", Kind: api.InterfaceKindAggregated, Name: "bond0", NetworkID: "n1",
			Abstract:   &api.AbstractInterface{NetworkedID: box.ID},
			Aggregated: &api.Aggregation{MasterID: "lo"},
		})
	}))

	require.NoError(t, h.Delete(ctx, box.ID))

	s.View(func(tx store.ReadTx) {
		assert.Nil(t, store.GetNetworked(tx, box.ID))
		n, err := store.CountAddresses(tx, store.All)
		assert.NoError(t, err)
		assert.Zero(t, n)
		left, err := store.FindNetworkInterfaces(tx, store.All)
		assert.NoError(t, err)
		assert.Empty(t, left)
	})

	assert.True(t, errors.IsErrNotFound(h.Delete(ctx, box.ID)))
}
