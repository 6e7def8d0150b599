package store

import (
	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	tableNetworkInterface = "network_interface"

	indexLocation = "location"
	indexMAC      = "mac"
	indexBonds    = "bonds"
)

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNetworkInterface,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNetworked: optionalIndex(indexNetworked, false, func(o Object) []interface{} {
					i := o.(networkInterfaceEntry)
					if i.Abstract == nil {
						return nil
					}
					return []interface{}{i.Abstract.NetworkedID}
				}),
				indexFoundation: optionalIndex(indexFoundation, false, func(o Object) []interface{} {
					i := o.(networkInterfaceEntry)
					if i.Real == nil {
						return nil
					}
					return []interface{}{i.Real.FoundationID}
				}),
				indexLocation: optionalIndex(indexLocation, true, func(o Object) []interface{} {
					i := o.(networkInterfaceEntry)
					if i.Real == nil {
						return nil
					}
					return []interface{}{i.Real.FoundationID, i.Real.PhysicalLocation}
				}),
				indexMAC: optionalIndex(indexMAC, true, func(o Object) []interface{} {
					i := o.(networkInterfaceEntry)
					if i.Real == nil || i.Real.MAC == "" {
						return nil
					}
					return []interface{}{i.Real.MAC}
				}),
				indexNetwork: optionalIndex(indexNetwork, false, func(o Object) []interface{} {
					return []interface{}{o.(networkInterfaceEntry).NetworkID}
				}),
				indexBonds: multiIndex(indexBonds, func(o Object) [][]interface{} {
					i := o.(networkInterfaceEntry)
					if i.Aggregated == nil {
						return nil
					}
					var keys [][]interface{}
					if i.Aggregated.MasterID != "" {
						keys = append(keys, []interface{}{i.Aggregated.MasterID})
					}
					for _, id := range i.Aggregated.SlaveIDs {
						keys = append(keys, []interface{}{id})
					}
					return keys
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.NetworkInterfaces, err = FindNetworkInterfaces(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.NetworkInterfaces))
			for _, i := range snapshot.NetworkInterfaces {
				objs = append(objs, networkInterfaceEntry{i})
			}
			return restoreTable(tx, tableNetworkInterface, objs)
		},
	})
}

type networkInterfaceEntry struct {
	*api.NetworkInterface
}

func (i networkInterfaceEntry) ID() string {
	return i.NetworkInterface.ID
}

func (i networkInterfaceEntry) Meta() api.Meta {
	return i.NetworkInterface.Meta
}

func (i networkInterfaceEntry) SetMeta(meta api.Meta) {
	i.NetworkInterface.Meta = meta
}

func (i networkInterfaceEntry) Copy() Object {
	return networkInterfaceEntry{i.NetworkInterface.Copy()}
}

func (i networkInterfaceEntry) Record() interface{} {
	return i.NetworkInterface.Copy()
}

func checkNetworkInterface(tx ReadTx, i *api.NetworkInterface) error {
	if i.Real == nil {
		return nil
	}
	if conflicts(tx, tableNetworkInterface, indexLocation, i.ID, i.Real.FoundationID, i.Real.PhysicalLocation) {
		return errors.Wrapf(ErrLocationConflict, "location %q of foundation %q", i.Real.PhysicalLocation, i.Real.FoundationID)
	}
	if i.Real.MAC != "" && conflicts(tx, tableNetworkInterface, indexMAC, i.ID, i.Real.MAC) {
		return errors.Wrapf(ErrMACConflict, "mac %s", i.Real.MAC)
	}
	return nil
}

// CreateNetworkInterface adds a new interface to the store.
// Returns ErrExist if the ID is already taken.
func CreateNetworkInterface(tx Tx, i *api.NetworkInterface) error {
	if err := checkNetworkInterface(tx, i); err != nil {
		return err
	}
	return tx.create(tableNetworkInterface, networkInterfaceEntry{i})
}

// UpdateNetworkInterface updates an existing interface in the store.
// Returns ErrNotExist if the interface doesn't exist.
func UpdateNetworkInterface(tx Tx, i *api.NetworkInterface) error {
	if err := checkNetworkInterface(tx, i); err != nil {
		return err
	}
	return tx.update(tableNetworkInterface, networkInterfaceEntry{i})
}

// DeleteNetworkInterface removes an interface from the store.
// Returns ErrNotExist if the interface doesn't exist.
func DeleteNetworkInterface(tx Tx, id string) error {
	return tx.delete(tableNetworkInterface, id)
}

// GetNetworkInterface looks up an interface by ID.
// Returns nil if the interface doesn't exist.
func GetNetworkInterface(tx ReadTx, id string) *api.NetworkInterface {
	i := tx.get(tableNetworkInterface, id)
	if i == nil {
		return nil
	}
	return i.(networkInterfaceEntry).NetworkInterface
}

// FindNetworkInterfaces selects a set of interfaces and returns them.
func FindNetworkInterfaces(tx ReadTx, by By) ([]*api.NetworkInterface, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNetworked, byFoundation, byNetwork, byBonding:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	interfaceList := []*api.NetworkInterface{}
	appendResult := func(o Object) {
		interfaceList = append(interfaceList, o.(networkInterfaceEntry).NetworkInterface)
	}

	err := tx.find(tableNetworkInterface, by, checkType, appendResult)
	return interfaceList, err
}
