package store

import (
	"math/big"

	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	tableAddress = "address"

	// indexOffset keys owned addresses by block and offset.
	indexOffset = "offset"
)

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableAddress,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexBlock: optionalIndex(indexBlock, false, func(o Object) []interface{} {
					a := o.(addressEntry)
					if a.Placement.IsAlias() {
						return nil
					}
					return []interface{}{a.Placement.BlockID}
				}),
				indexOffset: optionalIndex(indexOffset, true, func(o Object) []interface{} {
					a := o.(addressEntry)
					if a.Placement.IsAlias() || a.Placement.Offset == nil {
						return nil
					}
					return []interface{}{a.Placement.BlockID, a.Placement.Offset}
				}),
				indexBlockKind: optionalIndex(indexBlockKind, false, func(o Object) []interface{} {
					a := o.(addressEntry)
					if a.Placement.IsAlias() {
						return nil
					}
					return []interface{}{a.Placement.BlockID, a.Kind}
				}),
				indexNetworked: optionalIndex(indexNetworked, false, func(o Object) []interface{} {
					a := o.(addressEntry)
					if a.Kind != api.AddressKindAddress || a.Address == nil {
						return nil
					}
					return []interface{}{a.Address.NetworkedID}
				}),
				indexAliasOf: optionalIndex(indexAliasOf, false, func(o Object) []interface{} {
					a := o.(addressEntry)
					if !a.Placement.IsAlias() {
						return nil
					}
					return []interface{}{a.Placement.AliasOf}
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.Addresses, err = FindAddresses(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.Addresses))
			for _, a := range snapshot.Addresses {
				objs = append(objs, addressEntry{a})
			}
			return restoreTable(tx, tableAddress, objs)
		},
	})
}

type addressEntry struct {
	*api.BaseAddress
}

func (a addressEntry) ID() string {
	return a.BaseAddress.ID
}

func (a addressEntry) Meta() api.Meta {
	return a.BaseAddress.Meta
}

func (a addressEntry) SetMeta(meta api.Meta) {
	a.BaseAddress.Meta = meta
}

func (a addressEntry) Copy() Object {
	return addressEntry{a.BaseAddress.Copy()}
}

func (a addressEntry) Record() interface{} {
	return a.BaseAddress.Copy()
}

func checkAddress(tx ReadTx, a *api.BaseAddress) error {
	if a.Placement.IsAlias() || a.Placement.Offset == nil {
		return nil
	}
	if conflicts(tx, tableAddress, indexOffset, a.ID, a.Placement.BlockID, a.Placement.Offset) {
		return errors.Wrapf(ErrOffsetConflict, "offset %s of address block %s", a.Placement.Offset, a.Placement.BlockID)
	}
	return nil
}

// CreateAddress adds a new address to the store.
// Returns ErrExist if the ID is already taken, and ErrOffsetConflict if
// another record owns the same block offset.
func CreateAddress(tx Tx, a *api.BaseAddress) error {
	if err := checkAddress(tx, a); err != nil {
		return err
	}
	return tx.create(tableAddress, addressEntry{a})
}

// UpdateAddress updates an existing address in the store.
// Returns ErrNotExist if the address doesn't exist.
func UpdateAddress(tx Tx, a *api.BaseAddress) error {
	if err := checkAddress(tx, a); err != nil {
		return err
	}
	return tx.update(tableAddress, addressEntry{a})
}

// DeleteAddress removes an address from the store.
// Returns ErrNotExist if the address doesn't exist.
func DeleteAddress(tx Tx, id string) error {
	return tx.delete(tableAddress, id)
}

// GetAddress looks up an address by ID.
// Returns nil if the address doesn't exist.
func GetAddress(tx ReadTx, id string) *api.BaseAddress {
	a := tx.get(tableAddress, id)
	if a == nil {
		return nil
	}
	return a.(addressEntry).BaseAddress
}

// GetAddressAt returns the record owning offset in a block, or nil.
func GetAddressAt(tx ReadTx, blockID string, offset *big.Int) *api.BaseAddress {
	a := tx.lookup(tableAddress, indexOffset, blockID, offset)
	if a == nil {
		return nil
	}
	return a.(addressEntry).BaseAddress.Copy()
}

// FindAddresses selects a set of addresses and returns them.
func FindAddresses(tx ReadTx, by By) ([]*api.BaseAddress, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byBlock, byBlockKind, byNetworked, byAliasOf:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	addressList := []*api.BaseAddress{}
	appendResult := func(o Object) {
		addressList = append(addressList, o.(addressEntry).BaseAddress)
	}

	err := tx.find(tableAddress, by, checkType, appendResult)
	return addressList, err
}

// CountAddresses returns the number of records matching by without
// copying them.
func CountAddresses(tx ReadTx, by By) (int, error) {
	switch by.(type) {
	case byAll, byBlock, byBlockKind, byNetworked, byAliasOf:
	default:
		return 0, ErrInvalidFindBy
	}
	index, args, err := by.index()
	if err != nil {
		return 0, err
	}
	it, err := tx.txn().Get(tableAddress, index, args...)
	if err != nil {
		return 0, err
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}
