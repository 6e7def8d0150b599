// Package api holds the records managed by the address space manager.
//
// Polymorphic records (addresses, hosts and interfaces) carry an explicit
// kind discriminator and one typed payload per kind. The payload matching
// the kind is the only one that may be set.
package api

import (
	"math/big"
	"time"
)

// Meta is the bookkeeping attached to every stored record.
type Meta struct {
	// Version is bumped by the store on every write. Updates carrying a
	// stale version are rejected.
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
