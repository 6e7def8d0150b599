package store

import "github.com/contractor/addrspace/api"

const (
	indexSite       = "site"
	indexName       = "name"
	indexBlock      = "block"
	indexBlockKind  = "blockkind"
	indexNetworked  = "networked"
	indexAliasOf    = "aliasof"
	indexFoundation = "foundation"
	indexNetwork    = "network"
)

// By is an interface type passed to Find methods. Implementations must be
// defined in this package.
type By interface {
	// isBy allows this interface to only be satisfied by certain internal
	// types.
	isBy()

	// index names the memdb index and arguments selecting the records.
	index() (string, []interface{}, error)
}

type byAll struct{}

func (a byAll) isBy() {
}

func (a byAll) index() (string, []interface{}, error) {
	return indexID + prefix, []interface{}{""}, nil
}

// All is an argument that can be passed to find to list all items in the
// set.
var All byAll

type bySite string

func (b bySite) isBy() {
}

func (b bySite) index() (string, []interface{}, error) {
	return indexSite, []interface{}{string(b)}, nil
}

// BySite creates an object to pass to Find to select by site.
func BySite(siteID string) By {
	return bySite(siteID)
}

type byBlock string

func (b byBlock) isBy() {
}

func (b byBlock) index() (string, []interface{}, error) {
	return indexBlock, []interface{}{string(b)}, nil
}

// ByAddressBlock creates an object to pass to Find to select by address
// block.
func ByAddressBlock(blockID string) By {
	return byBlock(blockID)
}

type byBlockKind struct {
	blockID string
	kind    api.AddressKind
}

func (b byBlockKind) isBy() {
}

func (b byBlockKind) index() (string, []interface{}, error) {
	return indexBlockKind, []interface{}{b.blockID, b.kind}, nil
}

// ByBlockKind creates an object to pass to Find to select the addresses of
// one subclass placed in a block.
func ByBlockKind(blockID string, kind api.AddressKind) By {
	return byBlockKind{blockID: blockID, kind: kind}
}

type byNetworked string

func (b byNetworked) isBy() {
}

func (b byNetworked) index() (string, []interface{}, error) {
	return indexNetworked, []interface{}{string(b)}, nil
}

// ByNetworked creates an object to pass to Find to select by owning host.
func ByNetworked(networkedID string) By {
	return byNetworked(networkedID)
}

type byAliasOf string

func (b byAliasOf) isBy() {
}

func (b byAliasOf) index() (string, []interface{}, error) {
	return indexAliasOf, []interface{}{string(b)}, nil
}

// ByAliasOf creates an object to pass to Find to select the aliases of an
// address.
func ByAliasOf(addressID string) By {
	return byAliasOf(addressID)
}

type byFoundation string

func (b byFoundation) isBy() {
}

func (b byFoundation) index() (string, []interface{}, error) {
	return indexFoundation, []interface{}{string(b)}, nil
}

// ByFoundation creates an object to pass to Find to select by foundation.
func ByFoundation(foundationID string) By {
	return byFoundation(foundationID)
}

type byNetwork string

func (b byNetwork) isBy() {
}

func (b byNetwork) index() (string, []interface{}, error) {
	return indexNetwork, []interface{}{string(b)}, nil
}

// ByNetwork creates an object to pass to Find to select by network.
func ByNetwork(networkID string) By {
	return byNetwork(networkID)
}

type byBonding string

func (b byBonding) isBy() {
}

func (b byBonding) index() (string, []interface{}, error) {
	return indexBonds, []interface{}{string(b)}, nil
}

// ByBonding creates an object to pass to Find to select the aggregated
// interfaces that bond an interface, as master or slave.
func ByBonding(interfaceID string) By {
	return byBonding(interfaceID)
}
