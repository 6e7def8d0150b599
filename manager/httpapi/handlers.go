package httpapi

import (
	"math/big"
	"net/http"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/addresses"
	"github.com/contractor/addrspace/manager/allocator"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/hosts"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/gorilla/mux"
)

type blockIn struct {
	Site          string   `json:"site"`
	Name          string   `json:"name"`
	Subnet        string   `json:"subnet"`
	Prefix        int      `json:"prefix"`
	GatewayOffset *big.Int `json:"gateway_offset"`
}

func (in blockIn) spec() registry.BlockSpec {
	return registry.BlockSpec{
		SiteID:        in.Site,
		Name:          in.Name,
		Subnet:        in.Subnet,
		Prefix:        in.Prefix,
		GatewayOffset: in.GatewayOffset,
	}
}

func (h *HTTP) createBlock(w http.ResponseWriter, r *http.Request) {
	var in blockIn
	if !decode(w, r, &in) {
		return
	}
	b, err := h.m.CreateAddressBlock(r.Context(), in.spec())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *HTTP) updateBlock(w http.ResponseWriter, r *http.Request) {
	var in blockIn
	if !decode(w, r, &in) {
		return
	}
	b, err := h.m.UpdateAddressBlock(r.Context(), mux.Vars(r)["id"], in.spec())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *HTTP) listBlocks(w http.ResponseWriter, r *http.Request) {
	list, err := h.m.ListAddressBlocks(r.Context(), mux.Vars(r)["site"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTP) getBlock(w http.ResponseWriter, r *http.Request) {
	b, err := h.m.GetAddressBlock(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *HTTP) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.m.DeleteAddressBlock(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) usage(w http.ResponseWriter, r *http.Request) {
	u, err := h.m.Usage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *HTTP) stats(w http.ResponseWriter, r *http.Request) {
	c := h.m.Stats()
	kinds := make(map[string]int, len(c.AddressKinds))
	for k, n := range c.AddressKinds {
		kinds[k.String()] = n
	}
	writeJSON(w, http.StatusOK, struct {
		Version    uint64         `json:"version"`
		Blocks     int            `json:"address_blocks"`
		Networks   int            `json:"networks"`
		Hosts      int            `json:"networked"`
		Interfaces int            `json:"network_interfaces"`
		Aliases    int            `json:"aliases"`
		Addresses  map[string]int `json:"addresses"`
	}{c.Version, c.Blocks, c.Networks, c.Hosts, c.Interfaces, c.Aliases, kinds})
}

type addressOut struct {
	*api.BaseAddress
	Effective *addresses.Effective `json:"effective,omitempty"`
}

func (h *HTTP) addressView(r *http.Request, a *api.BaseAddress) (addressOut, error) {
	eff, err := h.m.ResolveAddress(r.Context(), a.ID)
	if err != nil {
		return addressOut{}, err
	}
	return addressOut{BaseAddress: a, Effective: &eff}, nil
}

func (h *HTTP) writeAddress(w http.ResponseWriter, r *http.Request, status int, a *api.BaseAddress) {
	out, err := h.addressView(r, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

func (h *HTTP) allocate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Networked     string `json:"networked"`
		InterfaceName string `json:"interface_name"`
		SubInterface  *int   `json:"sub_interface"`
		IsPrimary     bool   `json:"is_primary"`
	}
	if !decode(w, r, &in) {
		return
	}
	a, err := h.m.NextAddress(r.Context(), allocator.Request{
		BlockID:       mux.Vars(r)["id"],
		NetworkedID:   in.Networked,
		InterfaceName: in.InterfaceName,
		SubInterface:  in.SubInterface,
		IsPrimary:     in.IsPrimary,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"delegated": true})
		return
	}
	h.writeAddress(w, r, http.StatusCreated, a)
}

func (h *HTTP) reserve(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Offset *big.Int `json:"offset"`
		Reason string   `json:"reason"`
	}
	if !decode(w, r, &in) {
		return
	}
	a, err := h.m.Reserve(r.Context(), mux.Vars(r)["id"], in.Offset, in.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeAddress(w, r, http.StatusCreated, a)
}

func (h *HTTP) createDynamic(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Offset *big.Int `json:"offset"`
		PXE    string   `json:"pxe"`
	}
	if !decode(w, r, &in) {
		return
	}
	a, err := h.m.CreateDynamic(r.Context(), mux.Vars(r)["id"], in.Offset, in.PXE)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeAddress(w, r, http.StatusCreated, a)
}

// addressIn is the body of address creation and update. Type defaults to
// "Address"; AliasOf makes the record borrow the address of another one.
type addressIn struct {
	Type          string   `json:"type"`
	Block         string   `json:"block"`
	Offset        *big.Int `json:"offset"`
	AliasOf       string   `json:"alias_of"`
	Networked     string   `json:"networked"`
	InterfaceName string   `json:"interface_name"`
	SubInterface  *int     `json:"sub_interface"`
	IsPrimary     bool     `json:"is_primary"`
	Reason        string   `json:"reason"`
	PXE           string   `json:"pxe"`
	Version       uint64   `json:"version"`
}

func (in addressIn) record(id string) (*api.BaseAddress, error) {
	kind := api.AddressKindAddress
	if in.Type != "" {
		var ok bool
		if kind, ok = api.ParseAddressKind(in.Type); !ok {
			return nil, errors.ErrInvalidField("type", "unknown address type %q", in.Type)
		}
	}

	a := &api.BaseAddress{ID: id, Meta: api.Meta{Version: in.Version}, Kind: kind}
	if in.AliasOf != "" {
		a.Placement = api.AliasOf(in.AliasOf)
	} else {
		a.Placement = api.Owned(in.Block, in.Offset)
	}
	switch kind {
	case api.AddressKindAddress:
		a.Address = &api.HostAddress{
			NetworkedID:   in.Networked,
			InterfaceName: in.InterfaceName,
			SubInterface:  in.SubInterface,
			IsPrimary:     in.IsPrimary,
		}
	case api.AddressKindReserved:
		a.Reserved = &api.ReservedAddress{Reason: in.Reason}
	case api.AddressKindDynamic:
		a.Dynamic = &api.DynamicAddress{PXE: in.PXE}
	}
	return a, nil
}

func (h *HTTP) createAddress(w http.ResponseWriter, r *http.Request) {
	var in addressIn
	if !decode(w, r, &in) {
		return
	}
	a, err := in.record("")
	if err == nil {
		a, err = h.m.CreateAddress(r.Context(), a)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeAddress(w, r, http.StatusCreated, a)
}

func (h *HTTP) updateAddress(w http.ResponseWriter, r *http.Request) {
	var in addressIn
	if !decode(w, r, &in) {
		return
	}
	a, err := in.record(mux.Vars(r)["id"])
	if err == nil {
		a, err = h.m.UpdateAddress(r.Context(), a)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeAddress(w, r, http.StatusOK, a)
}

func (h *HTTP) blockAddresses(w http.ResponseWriter, r *http.Request) {
	kind := api.AddressKindUnknown
	if t := r.URL.Query().Get("type"); t != "" {
		var ok bool
		if kind, ok = api.ParseAddressKind(t); !ok {
			writeError(w, r, errors.ErrInvalidField("type", "unknown address type %q", t))
			return
		}
	}
	list, err := h.m.ListBlockAddresses(r.Context(), mux.Vars(r)["id"], kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]addressOut, 0, len(list))
	for _, a := range list {
		v, err := h.addressView(r, a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTP) getAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.m.GetAddress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeAddress(w, r, http.StatusOK, a)
}

func (h *HTTP) release(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Release(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) lookup(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ip query param required"})
		return
	}
	var (
		a   *api.BaseAddress
		err error
	)
	if site := r.URL.Query().Get("site"); site != "" {
		a, err = h.m.LookupAddressInSite(r.Context(), site, ip)
	} else {
		a, err = h.m.LookupAddress(r.Context(), ip)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no address at " + ip})
		return
	}
	h.writeAddress(w, r, http.StatusOK, a)
}

func (h *HTTP) createHost(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Site       string `json:"site"`
		Hostname   string `json:"hostname"`
		Foundation string `json:"foundation"`
	}
	if !decode(w, r, &in) {
		return
	}
	n, err := h.m.CreateNetworked(r.Context(), hosts.Spec{SiteID: in.Site, Hostname: in.Hostname, FoundationID: in.Foundation})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *HTTP) getHost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	n, err := h.m.GetNetworked(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fqdn, err := h.m.FQDN(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	primary, err := h.m.PrimaryAddress(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	provisioning, err := h.m.ProvisioningAddress(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := struct {
		*api.Networked
		FQDN                string      `json:"fqdn"`
		PrimaryAddress      *addressOut `json:"primary_address"`
		ProvisioningAddress *addressOut `json:"provisioning_address"`
	}{Networked: n, FQDN: fqdn}
	for _, p := range []struct {
		a   *api.BaseAddress
		dst **addressOut
	}{{primary, &out.PrimaryAddress}, {provisioning, &out.ProvisioningAddress}} {
		if p.a == nil {
			continue
		}
		v, err := h.addressView(r, p.a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		*p.dst = &v
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTP) deleteHost(w http.ResponseWriter, r *http.Request) {
	if err := h.m.DeleteNetworked(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) hostAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.m.HostAddresses(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]addressOut, 0, len(list))
	for _, a := range list {
		v, err := h.addressView(r, a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTP) hostInterfaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.m.HostInterfaces(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTP) createNetwork(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Site string `json:"site"`
		Name string `json:"name"`
		MTU  int    `json:"mtu"`
	}
	if !decode(w, r, &in) {
		return
	}
	n, err := h.m.CreateNetwork(r.Context(), registry.NetworkSpec{SiteID: in.Site, Name: in.Name, MTU: in.MTU})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *HTTP) getNetwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	n, err := h.m.GetNetwork(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	blocks, err := h.m.NetworkBlocks(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*api.Network
		Blocks []*api.NetworkAddressBlock `json:"blocks"`
	}{n, blocks})
}

func (h *HTTP) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.m.DeleteNetwork(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) attachBlock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Block  string `json:"block"`
		VLAN   int    `json:"vlan"`
		Tagged bool   `json:"tagged"`
	}
	if !decode(w, r, &in) {
		return
	}
	j, err := h.m.AttachBlock(r.Context(), mux.Vars(r)["id"], in.Block, in.VLAN, in.Tagged)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *HTTP) detachBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.m.DetachBlock(r.Context(), vars["id"], vars["block"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) createInterface(w http.ResponseWriter, r *http.Request) {
	var in api.NetworkInterface
	if !decode(w, r, &in) {
		return
	}
	i, err := h.m.CreateInterface(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *HTTP) getInterface(w http.ResponseWriter, r *http.Request) {
	i, err := h.m.GetInterface(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *HTTP) updateInterface(w http.ResponseWriter, r *http.Request) {
	var in api.NetworkInterface
	if !decode(w, r, &in) {
		return
	}
	in.ID = mux.Vars(r)["id"]
	i, err := h.m.UpdateInterface(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *HTTP) deleteInterface(w http.ResponseWriter, r *http.Request) {
	if err := h.m.DeleteInterface(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) interfaceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.m.InterfaceConfig(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
