// Package allocator picks free offsets of address blocks and turns them
// into host addresses.
//
// Allocation is optimistic. The free set is computed from a read
// snapshot, one offset is picked at random, and the record is written in a
// separate transaction that checks offset uniqueness again. Losing the
// race to a concurrent allocation fails with a conflict error and the
// caller retries the whole allocation.
//
// Small ranges are enumerated and the pick is uniform over the free set.
// Ranges above the enumeration cutoff (large IPv6 blocks) are never
// materialized: random candidates are sampled a bounded number of times,
// then a wrap-around scan from a random start finds a free offset in at
// most occupied+2 steps.
package allocator
