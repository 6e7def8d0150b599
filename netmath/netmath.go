// Package netmath implements the address arithmetic used by the address
// space manager. Addresses are handled as unsigned integers (32 bits for
// IPv4, 128 bits for IPv6) carried together with their Family, so that
// offsets inside a block are plain integer differences.
package netmath

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Family is the address family of an integer address.
type Family int

const (
	// V4 is the IPv4 family.
	V4 Family = 4
	// V6 is the IPv6 family.
	V6 Family = 6
)

func (f Family) String() string {
	switch f {
	case V4:
		return "v4"
	case V6:
		return "v6"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Bits returns the width of an address of this family.
func (f Family) Bits() int {
	if f == V6 {
		return 128
	}
	return 32
}

// ErrInvalidAddress is returned when an address text cannot be parsed.
var ErrInvalidAddress = errors.New("invalid address")

var (
	maxV4 = new(big.Int).SetUint64(1<<32 - 1)
	one   = big.NewInt(1)
	two   = big.NewInt(2)
)

// Parse converts the textual form of an address into its integer value.
// IPv4-mapped IPv6 text is treated as IPv6.
func Parse(text string) (*big.Int, Family, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(text))
	if err != nil || addr.Zone() != "" {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	x, f := FromAddr(addr)
	return x, f, nil
}

// Format renders x in the canonical textual form of family f.
func Format(x *big.Int, f Family) (string, error) {
	addr, err := ToAddr(x, f)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// IsV4 reports whether x fits in the IPv4 address space.
func IsV4(x *big.Int) bool {
	return x.Sign() >= 0 && x.Cmp(maxV4) <= 0
}

// FromAddr converts a netip.Addr to its integer value.
func FromAddr(addr netip.Addr) (*big.Int, Family) {
	if addr.Is4() {
		b := addr.As4()
		return new(big.Int).SetBytes(b[:]), V4
	}
	b := addr.As16()
	return new(big.Int).SetBytes(b[:]), V6
}

// ToAddr converts an integer value back to a netip.Addr of family f.
func ToAddr(x *big.Int, f Family) (netip.Addr, error) {
	if x == nil || x.Sign() < 0 || x.BitLen() > f.Bits() {
		return netip.Addr{}, fmt.Errorf("%w: %v does not fit family %v", ErrInvalidAddress, x, f)
	}
	if f == V4 {
		var b [4]byte
		x.FillBytes(b[:])
		return netip.AddrFrom4(b), nil
	}
	var b [16]byte
	x.FillBytes(b[:])
	return netip.AddrFrom16(b), nil
}

// MaxPrefix returns the longest prefix length valid for f.
func MaxPrefix(f Family) int {
	return f.Bits()
}

// ValidPrefix reports whether prefix is acceptable for a block of family f.
func ValidPrefix(prefix int, f Family) bool {
	return prefix >= 1 && prefix <= MaxPrefix(f)
}

// Netmask returns the integer netmask for the prefix length.
func Netmask(prefix int, f Family) *big.Int {
	bits := f.Bits()
	all := new(big.Int).Lsh(one, uint(bits))
	all.Sub(all, one)
	host := new(big.Int).Lsh(one, uint(bits-prefix))
	host.Sub(host, one)
	return all.Xor(all, host)
}

// NetworkSize returns 2^(bits-prefix).
func NetworkSize(prefix int, f Family) *big.Int {
	return new(big.Int).Lsh(one, uint(f.Bits()-prefix))
}

func ipNet(addr *big.Int, f Family, prefix int) (*net.IPNet, error) {
	if !ValidPrefix(prefix, f) {
		return nil, fmt.Errorf("prefix /%d is not valid for %v", prefix, f)
	}
	a, err := ToAddr(addr, f)
	if err != nil {
		return nil, err
	}
	p := netip.PrefixFrom(a, prefix).Masked()
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(prefix, f.Bits()),
	}, nil
}

func ipToInt(ip net.IP, f Family) *big.Int {
	if f == V4 {
		ip = ip.To4()
	} else {
		ip = ip.To16()
	}
	return new(big.Int).SetBytes(ip)
}

// NetworkBounds returns the first and last address of the network
// containing addr. Unless includeUnusable is set, the network and broadcast
// addresses are dropped for networks with more than two addresses. With
// asOffsets the bounds are relative to the network base address.
func NetworkBounds(addr *big.Int, f Family, prefix int, includeUnusable, asOffsets bool) (*big.Int, *big.Int, error) {
	network, err := ipNet(addr, f, prefix)
	if err != nil {
		return nil, nil, err
	}
	first, last := cidr.AddressRange(network)
	if !includeUnusable && NetworkSize(prefix, f).Cmp(two) > 0 {
		first, last = cidr.Inc(first), cidr.Dec(last)
	}
	low, high := ipToInt(first, f), ipToInt(last, f)
	if asOffsets {
		base := ipToInt(network.IP, f)
		low.Sub(low, base)
		high.Sub(high, base)
	}
	return low, high, nil
}

// NetworkRange returns the usable addresses (or offsets) of a network as a
// lazy Range.
func NetworkRange(addr *big.Int, f Family, prefix int, excludeUnusable, asOffsets bool) (Range, error) {
	low, high, err := NetworkBounds(addr, f, prefix, !excludeUnusable, asOffsets)
	if err != nil {
		return Range{}, err
	}
	return Range{Low: low, High: high}, nil
}

// Range is an inclusive interval of integers. It is never materialized
// unless asked to through Offsets.
type Range struct {
	Low  *big.Int
	High *big.Int
}

// Len returns the number of integers in the range.
func (r Range) Len() *big.Int {
	if r.Low == nil || r.High == nil || r.High.Cmp(r.Low) < 0 {
		return new(big.Int)
	}
	n := new(big.Int).Sub(r.High, r.Low)
	return n.Add(n, one)
}

// Contains reports whether x lies inside the range.
func (r Range) Contains(x *big.Int) bool {
	if x == nil || r.Low == nil || r.High == nil {
		return false
	}
	return x.Cmp(r.Low) >= 0 && x.Cmp(r.High) <= 0
}

// Offsets enumerates the range. It refuses ranges longer than limit.
func (r Range) Offsets(limit int) ([]*big.Int, error) {
	n := r.Len()
	if !n.IsInt64() || n.Int64() > int64(limit) {
		return nil, fmt.Errorf("range of %v entries exceeds the enumeration limit of %d", n, limit)
	}
	out := make([]*big.Int, 0, int(n.Int64()))
	for x := new(big.Int).Set(r.Low); x.Cmp(r.High) <= 0; x = new(big.Int).Add(x, one) {
		out = append(out, x)
	}
	return out, nil
}
