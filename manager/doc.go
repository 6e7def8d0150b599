// Package manager is the entry point of the address space manager. It
// holds the store and the subsystems built on it, gates every mutating
// operation through an Authorizer, and retries allocations that lose a
// race on an offset.
package manager
