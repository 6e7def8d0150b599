package api

import (
	"fmt"
	"math/big"
	"net/netip"
	"strings"

	"github.com/contractor/addrspace/netmath"
)

// AddressBlock is a CIDR range of addresses scoped to a site.
type AddressBlock struct {
	ID     string `json:"id"`
	Meta   Meta   `json:"meta"`
	SiteID string `json:"site_id"`
	Name   string `json:"name"`

	// Subnet is always the first address of the network.
	Subnet netip.Addr `json:"subnet"`
	Prefix int        `json:"prefix"`
	// GatewayOffset is optional. When set it is excluded from allocation.
	GatewayOffset *big.Int `json:"gateway_offset,omitempty"`
	// MaxAddress is the last address of the network, derived from Subnet
	// and Prefix.
	MaxAddress netip.Addr `json:"max_address"`
}

// Family returns the address family of the block.
func (b *AddressBlock) Family() netmath.Family {
	if b.Subnet.Is4() {
		return netmath.V4
	}
	return netmath.V6
}

// CIDR renders the block as subnet/prefix.
func (b *AddressBlock) CIDR() string {
	return fmt.Sprintf("%s/%d", b.Subnet, b.Prefix)
}

// Copy returns a deep copy of the block.
func (b *AddressBlock) Copy() *AddressBlock {
	if b == nil {
		return nil
	}
	c := *b
	c.GatewayOffset = copyInt(b.GatewayOffset)
	return &c
}

// AddressKind discriminates the concrete variants of BaseAddress.
type AddressKind int

const (
	// AddressKindUnknown is never valid for a stored record.
	AddressKindUnknown AddressKind = iota
	// AddressKindAddress is an address bound to a host interface.
	AddressKindAddress
	// AddressKindReserved occupies an offset without being assignable.
	AddressKindReserved
	// AddressKindDynamic marks an offset as part of a dynamic pool.
	AddressKindDynamic
)

// String returns the record type name of the kind.
func (k AddressKind) String() string {
	switch k {
	case AddressKindAddress:
		return "Address"
	case AddressKindReserved:
		return "ReservedAddress"
	case AddressKindDynamic:
		return "DynamicAddress"
	}
	return "Unknown"
}

// ParseAddressKind returns the kind named by a record type name, as
// returned by String, or by its short form ("address", "reserved",
// "dynamic"). Case is ignored.
func ParseAddressKind(name string) (AddressKind, bool) {
	switch strings.ToLower(name) {
	case "address":
		return AddressKindAddress, true
	case "reservedaddress", "reserved":
		return AddressKindReserved, true
	case "dynamicaddress", "dynamic":
		return AddressKindDynamic, true
	}
	return AddressKindUnknown, false
}

// PlacementKind tells whether an address holds its own offset or borrows
// the address of another record.
type PlacementKind int

const (
	// PlacementOwned holds a block and offset.
	PlacementOwned PlacementKind = iota
	// PlacementAlias points at another Address.
	PlacementAlias
)

// Placement locates an address. Owned placements carry BlockID and Offset,
// alias placements carry AliasOf and nothing else.
type Placement struct {
	Kind    PlacementKind `json:"kind"`
	BlockID string        `json:"block_id,omitempty"`
	Offset  *big.Int      `json:"offset,omitempty"`
	AliasOf string        `json:"alias_of,omitempty"`
}

// Owned places an address at offset inside a block.
func Owned(blockID string, offset *big.Int) Placement {
	return Placement{Kind: PlacementOwned, BlockID: blockID, Offset: offset}
}

// AliasOf makes an address borrow its IP from another Address.
func AliasOf(addressID string) Placement {
	return Placement{Kind: PlacementAlias, AliasOf: addressID}
}

// IsAlias reports whether the placement points at another address.
func (p Placement) IsAlias() bool {
	return p.Kind == PlacementAlias
}

// BaseAddress is the common record for everything that occupies (or
// borrows) an address.
type BaseAddress struct {
	ID        string      `json:"id"`
	Meta      Meta        `json:"meta"`
	Kind      AddressKind `json:"kind"`
	Placement Placement   `json:"placement"`

	Address  *HostAddress     `json:"address,omitempty"`
	Reserved *ReservedAddress `json:"reserved,omitempty"`
	Dynamic  *DynamicAddress  `json:"dynamic,omitempty"`
}

// Subclass is implemented by the kind-specific payloads of BaseAddress.
type Subclass interface {
	Kind() AddressKind
}

// HostAddress binds an address to an interface of a Networked host.
type HostAddress struct {
	NetworkedID   string `json:"networked_id"`
	InterfaceName string `json:"interface_name"`
	// SubInterface is nil when the address is on the interface itself.
	SubInterface *int `json:"sub_interface,omitempty"`
	IsPrimary    bool `json:"is_primary"`
}

// Kind implements Subclass.
func (*HostAddress) Kind() AddressKind { return AddressKindAddress }

// ReservedAddress keeps an offset out of circulation.
type ReservedAddress struct {
	Reason string `json:"reason"`
}

// Kind implements Subclass.
func (*ReservedAddress) Kind() AddressKind { return AddressKindReserved }

// DynamicAddress marks an offset as belonging to a dynamic pool.
type DynamicAddress struct {
	PXE string `json:"pxe,omitempty"`
}

// Kind implements Subclass.
func (*DynamicAddress) Kind() AddressKind { return AddressKindDynamic }

// Subclass returns the payload matching the record kind. The boolean is
// false when the payload for the kind is missing.
func (a *BaseAddress) Subclass() (Subclass, bool) {
	switch a.Kind {
	case AddressKindAddress:
		if a.Address != nil {
			return a.Address, true
		}
	case AddressKindReserved:
		if a.Reserved != nil {
			return a.Reserved, true
		}
	case AddressKindDynamic:
		if a.Dynamic != nil {
			return a.Dynamic, true
		}
	}
	return nil, false
}

// Type returns the record type name.
func (a *BaseAddress) Type() string {
	return a.Kind.String()
}

// Copy returns a deep copy of the address.
func (a *BaseAddress) Copy() *BaseAddress {
	if a == nil {
		return nil
	}
	c := *a
	c.Placement.Offset = copyInt(a.Placement.Offset)
	if a.Address != nil {
		h := *a.Address
		if a.Address.SubInterface != nil {
			s := *a.Address.SubInterface
			h.SubInterface = &s
		}
		c.Address = &h
	}
	if a.Reserved != nil {
		r := *a.Reserved
		c.Reserved = &r
	}
	if a.Dynamic != nil {
		d := *a.Dynamic
		c.Dynamic = &d
	}
	return &c
}

// NewHostAddress builds an owned Address record.
func NewHostAddress(blockID string, offset *big.Int, host *HostAddress) *BaseAddress {
	return &BaseAddress{
		Kind:      AddressKindAddress,
		Placement: Owned(blockID, offset),
		Address:   host,
	}
}

// NewReservedAddress builds a ReservedAddress record.
func NewReservedAddress(blockID string, offset *big.Int, reason string) *BaseAddress {
	return &BaseAddress{
		Kind:      AddressKindReserved,
		Placement: Owned(blockID, offset),
		Reserved:  &ReservedAddress{Reason: reason},
	}
}

// NewDynamicAddress builds a DynamicAddress record.
func NewDynamicAddress(blockID string, offset *big.Int, pxe string) *BaseAddress {
	return &BaseAddress{
		Kind:      AddressKindDynamic,
		Placement: Owned(blockID, offset),
		Dynamic:   &DynamicAddress{PXE: pxe},
	}
}

// Network groups address blocks of a site.
type Network struct {
	ID     string `json:"id"`
	Meta   Meta   `json:"meta"`
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
	MTU    int    `json:"mtu,omitempty"`
}

// Copy returns a copy of the network.
func (n *Network) Copy() *Network {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

const (
	// VLANUntagged is the native vlan.
	VLANUntagged = 0
	// VLANTrunk means every vlan is carried.
	VLANTrunk = 4096
)

// NetworkAddressBlock joins a block to a network with its tag settings.
type NetworkAddressBlock struct {
	ID             string `json:"id"`
	Meta           Meta   `json:"meta"`
	NetworkID      string `json:"network_id"`
	AddressBlockID string `json:"address_block_id"`
	VLAN           int    `json:"vlan"`
	VLANTagged     bool   `json:"vlan_tagged"`
}

// Copy returns a copy of the join record.
func (n *NetworkAddressBlock) Copy() *NetworkAddressBlock {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
