package netmath

import (
	"errors"
	"math/big"
	"testing"

	. "github.com/onsi/gomega"
)

func mustParse(text string) (*big.Int, Family) {
	x, f, err := Parse(text)
	Expect(err).To(BeNil())
	return x, f
}

func TestParseFormatRoundTrip(t *testing.T) {
	RegisterTestingT(t)

	for _, tc := range []struct {
		in, canonical string
		family        Family
	}{
		{"10.0.0.1", "10.0.0.1", V4},
		{"0.0.0.0", "0.0.0.0", V4},
		{"255.255.255.255", "255.255.255.255", V4},
		{" 192.168.1.20 ", "192.168.1.20", V4},
		{"2001:DB8::1", "2001:db8::1", V6},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1", V6},
		{"::", "::", V6},
		{"::ffff:10.0.0.1", "::ffff:10.0.0.1", V6},
	} {
		x, f := mustParse(tc.in)
		Expect(f).To(Equal(tc.family), tc.in)
		out, err := Format(x, f)
		Expect(err).To(BeNil())
		Expect(out).To(Equal(tc.canonical))

		back, f2 := mustParse(out)
		Expect(f2).To(Equal(f))
		Expect(back.Cmp(x)).To(Equal(0))
	}
}

func TestParseInvalid(t *testing.T) {
	RegisterTestingT(t)

	for _, in := range []string{"", "10.0.0", "10.0.0.256", "not-an-ip", "fe80::1%eth0", "10.0.0.0/24"} {
		_, _, err := Parse(in)
		Expect(err).NotTo(BeNil(), in)
		Expect(errors.Is(err, ErrInvalidAddress)).To(BeTrue())
	}
}

func TestFormatOutOfFamily(t *testing.T) {
	RegisterTestingT(t)

	x := new(big.Int).Lsh(big.NewInt(1), 32)
	_, err := Format(x, V4)
	Expect(errors.Is(err, ErrInvalidAddress)).To(BeTrue())
	_, err = Format(big.NewInt(-1), V6)
	Expect(err).NotTo(BeNil())
}

func TestIsV4(t *testing.T) {
	RegisterTestingT(t)

	x, _ := mustParse("255.255.255.255")
	Expect(IsV4(x)).To(BeTrue())
	y, _ := mustParse("2001:db8::")
	Expect(IsV4(y)).To(BeFalse())
}

func TestNetmask(t *testing.T) {
	RegisterTestingT(t)

	mask, _ := Format(Netmask(24, V4), V4)
	Expect(mask).To(Equal("255.255.255.0"))
	mask, _ = Format(Netmask(32, V4), V4)
	Expect(mask).To(Equal("255.255.255.255"))
	mask, _ = Format(Netmask(1, V4), V4)
	Expect(mask).To(Equal("128.0.0.0"))
	mask, _ = Format(Netmask(64, V6), V6)
	Expect(mask).To(Equal("ffff:ffff:ffff:ffff::"))
}

func TestNetworkSize(t *testing.T) {
	RegisterTestingT(t)

	Expect(NetworkSize(24, V4).Int64()).To(Equal(int64(256)))
	Expect(NetworkSize(32, V4).Int64()).To(Equal(int64(1)))
	Expect(NetworkSize(31, V4).Int64()).To(Equal(int64(2)))
	Expect(NetworkSize(64, V6).String()).To(Equal("18446744073709551616"))
	Expect(NetworkSize(1, V6).BitLen()).To(Equal(128))
}

func TestNetworkBounds(t *testing.T) {
	RegisterTestingT(t)

	addr, f := mustParse("10.0.0.77")

	low, high, err := NetworkBounds(addr, f, 24, true, false)
	Expect(err).To(BeNil())
	l, _ := Format(low, f)
	h, _ := Format(high, f)
	Expect(l).To(Equal("10.0.0.0"))
	Expect(h).To(Equal("10.0.0.255"))

	low, high, err = NetworkBounds(addr, f, 24, false, false)
	Expect(err).To(BeNil())
	l, _ = Format(low, f)
	h, _ = Format(high, f)
	Expect(l).To(Equal("10.0.0.1"))
	Expect(h).To(Equal("10.0.0.254"))

	low, high, err = NetworkBounds(addr, f, 24, false, true)
	Expect(err).To(BeNil())
	Expect(low.Int64()).To(Equal(int64(1)))
	Expect(high.Int64()).To(Equal(int64(254)))
}

func TestNetworkBoundsSmallSubnets(t *testing.T) {
	RegisterTestingT(t)

	addr, f := mustParse("10.0.0.5")

	low, high, err := NetworkBounds(addr, f, 32, false, true)
	Expect(err).To(BeNil())
	Expect(low.Int64()).To(Equal(int64(0)))
	Expect(high.Int64()).To(Equal(int64(0)))

	low, high, err = NetworkBounds(addr, f, 31, false, true)
	Expect(err).To(BeNil())
	Expect(low.Int64()).To(Equal(int64(0)))
	Expect(high.Int64()).To(Equal(int64(1)))

	low, high, err = NetworkBounds(addr, f, 30, false, true)
	Expect(err).To(BeNil())
	Expect(low.Int64()).To(Equal(int64(1)))
	Expect(high.Int64()).To(Equal(int64(2)))

	v6, f6 := mustParse("2001:db8::7")
	low, high, err = NetworkBounds(v6, f6, 127, false, true)
	Expect(err).To(BeNil())
	Expect(low.Int64()).To(Equal(int64(0)))
	Expect(high.Int64()).To(Equal(int64(1)))
}

func TestNetworkBoundsRejectsBadPrefix(t *testing.T) {
	RegisterTestingT(t)

	addr, f := mustParse("10.0.0.0")
	_, _, err := NetworkBounds(addr, f, 33, true, false)
	Expect(err).NotTo(BeNil())
	_, _, err = NetworkBounds(addr, f, 0, true, false)
	Expect(err).NotTo(BeNil())
}

func TestNetworkRange(t *testing.T) {
	RegisterTestingT(t)

	addr, f := mustParse("10.0.0.0")
	r, err := NetworkRange(addr, f, 30, true, true)
	Expect(err).To(BeNil())
	Expect(r.Len().Int64()).To(Equal(int64(2)))
	Expect(r.Contains(big.NewInt(0))).To(BeFalse())
	Expect(r.Contains(big.NewInt(1))).To(BeTrue())
	Expect(r.Contains(big.NewInt(2))).To(BeTrue())
	Expect(r.Contains(big.NewInt(3))).To(BeFalse())

	offsets, err := r.Offsets(16)
	Expect(err).To(BeNil())
	Expect(offsets).To(HaveLen(2))
	Expect(offsets[0].Int64()).To(Equal(int64(1)))
	Expect(offsets[1].Int64()).To(Equal(int64(2)))
}

func TestNetworkRangeLargeV6IsLazy(t *testing.T) {
	RegisterTestingT(t)

	addr, f := mustParse("2001:db8::")
	r, err := NetworkRange(addr, f, 48, true, true)
	Expect(err).To(BeNil())
	Expect(r.Len().BitLen()).To(Equal(80))

	_, err = r.Offsets(1 << 20)
	Expect(err).NotTo(BeNil())

	Expect(r.Contains(new(big.Int).Lsh(big.NewInt(1), 70))).To(BeTrue())
}
