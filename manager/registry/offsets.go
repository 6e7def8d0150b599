package registry

import (
	"fmt"
	"math/big"
	"net/netip"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/netmath"
)

// UsableOffsets returns the offsets of b that may hold an address record,
// before the gateway is taken out.
func UsableOffsets(b *api.AddressBlock) (netmath.Range, error) {
	base, family := netmath.FromAddr(b.Subnet)
	return netmath.NetworkRange(base, family, b.Prefix, true, true)
}

// Size returns the number of addresses of b, network and broadcast
// included.
func Size(b *api.AddressBlock) *big.Int {
	return netmath.NetworkSize(b.Prefix, b.Family())
}

// CheckOffset returns why offset cannot hold an address record of b, or
// the empty string if it can.
func CheckOffset(b *api.AddressBlock, offset *big.Int) string {
	if offset == nil {
		return "is required"
	}
	size := Size(b)
	switch {
	case size.Cmp(big.NewInt(1)) == 0:
		if offset.Sign() != 0 {
			return "for blocks of size 1, offset must be 0"
		}
	case size.Cmp(big.NewInt(2)) == 0:
		if offset.Sign() < 0 || offset.Cmp(big.NewInt(1)) > 0 {
			return "for blocks of size 2, offset must be 0 or 1"
		}
	default:
		usable, err := UsableOffsets(b)
		if err != nil {
			return err.Error()
		}
		if !usable.Contains(offset) {
			return fmt.Sprintf("must be between %s and %s", usable.Low, usable.High)
		}
	}
	if b.GatewayOffset != nil && offset.Cmp(b.GatewayOffset) == 0 {
		return "is the gateway of the address block"
	}
	return ""
}

// AddressAt returns the address at offset inside b.
func AddressAt(b *api.AddressBlock, offset *big.Int) (netip.Addr, error) {
	base, family := netmath.FromAddr(b.Subnet)
	return netmath.ToAddr(base.Add(base, offset), family)
}

// OffsetOf returns the offset of addr inside b. The caller checks that b
// contains addr.
func OffsetOf(b *api.AddressBlock, addr netip.Addr) *big.Int {
	base, _ := netmath.FromAddr(b.Subnet)
	x, _ := netmath.FromAddr(addr)
	return x.Sub(x, base)
}

// Contains reports whether addr lies in [subnet, max address] of b.
func Contains(b *api.AddressBlock, addr netip.Addr) bool {
	return addr.Is4() == b.Subnet.Is4() && !addr.Less(b.Subnet) && !b.MaxAddress.Less(addr)
}

// Gateway returns the gateway address of b, if it has one.
func Gateway(b *api.AddressBlock) (netip.Addr, bool) {
	if b.GatewayOffset == nil {
		return netip.Addr{}, false
	}
	addr, err := AddressAt(b, b.GatewayOffset)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// Netmask returns the netmask of b in address form.
func Netmask(b *api.AddressBlock) netip.Addr {
	mask, _ := netmath.ToAddr(netmath.Netmask(b.Prefix, b.Family()), b.Family())
	return mask
}
