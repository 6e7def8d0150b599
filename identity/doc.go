// Package identity provides functionality for generating and managing
// identifiers of stored records.
//
// Identifiers are random version 4 UUIDs in their canonical textual form.
// They carry no meaning and should be treated opaquely.
package identity
