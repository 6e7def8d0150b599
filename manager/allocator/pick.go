package allocator

import (
	"math/big"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager/errors"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/contractor/addrspace/netmath"
)

var one = big.NewInt(1)

// occupancy is the set of offsets of a block that cannot be handed out.
type occupancy map[string]struct{}

func (o occupancy) has(x *big.Int) bool {
	_, ok := o[x.String()]
	return ok
}

func (o occupancy) add(x *big.Int) {
	o[x.String()] = struct{}{}
}

// pick chooses a free offset of b. It fails with an exhaustion error when
// every usable offset is taken.
func (a *Allocator) pick(b *api.AddressBlock, taken occupancy) (*big.Int, error) {
	usable, err := registry.UsableOffsets(b)
	if err != nil {
		return nil, errors.ErrInternal("usable range of block %s: %v", b.ID, err)
	}
	if b.GatewayOffset != nil && usable.Contains(b.GatewayOffset) {
		taken.add(b.GatewayOffset)
	}

	size := usable.Len()
	blocked := 0
	for k := range taken {
		x, _ := new(big.Int).SetString(k, 10)
		if usable.Contains(x) {
			blocked++
		}
	}
	if size.Cmp(big.NewInt(int64(blocked))) <= 0 {
		return nil, errors.ErrExhausted(b.CIDR())
	}

	if size.IsInt64() && size.Int64() <= a.config.EnumerationCutoff {
		return a.pickEnumerated(b, usable, taken)
	}
	return a.pickSampled(usable, taken, blocked), nil
}

// pickEnumerated materializes the free set and picks uniformly from it.
func (a *Allocator) pickEnumerated(b *api.AddressBlock, usable netmath.Range, taken occupancy) (*big.Int, error) {
	all, err := usable.Offsets(int(a.config.EnumerationCutoff))
	if err != nil {
		return nil, errors.ErrInternal("enumerating block %s: %v", b.ID, err)
	}
	free := all[:0]
	for _, x := range all {
		if !taken.has(x) {
			free = append(free, x)
		}
	}
	if len(free) == 0 {
		return nil, errors.ErrExhausted(b.CIDR())
	}
	return free[a.intn(len(free))], nil
}

// pickSampled tries random candidates, then scans forward with
// wrap-around from a random start. At least one free offset exists, and
// among any blocked+1 consecutive offsets one is free, so the scan ends.
func (a *Allocator) pickSampled(usable netmath.Range, taken occupancy, blocked int) *big.Int {
	size := usable.Len()
	for i := 0; i < a.config.SampleAttempts; i++ {
		x := a.randOffset(usable.Low, size)
		if !taken.has(x) {
			return x
		}
	}

	x := a.randOffset(usable.Low, size)
	for step := 0; step <= blocked; step++ {
		if !taken.has(x) {
			return x
		}
		x = new(big.Int).Add(x, one)
		if x.Cmp(usable.High) > 0 {
			x = new(big.Int).Set(usable.Low)
		}
	}
	// unreachable while blocked < size
	return x
}

func (a *Allocator) intn(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rnd.Intn(n)
}

func (a *Allocator) randOffset(low, size *big.Int) *big.Int {
	a.mu.Lock()
	x := new(big.Int).Rand(a.rnd, size)
	a.mu.Unlock()
	return x.Add(x, low)
}
