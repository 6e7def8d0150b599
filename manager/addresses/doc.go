// Package addresses validates and stores the records occupying the offsets
// of address blocks: host addresses, reservations and dynamic pool
// members.
//
// Host addresses may borrow the address of another host address instead
// of holding an offset. Such aliases are resolved transitively; self
// references and cycles are rejected when the alias is written.
package addresses
