package store

import (
	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const tableNetwork = "network"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNetwork,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexSite: optionalIndex(indexSite, false, func(o Object) []interface{} {
					return []interface{}{o.(networkEntry).SiteID}
				}),
				indexName: optionalIndex(indexName, true, func(o Object) []interface{} {
					n := o.(networkEntry)
					return []interface{}{n.SiteID, n.Name}
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.Networks, err = FindNetworks(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.Networks))
			for _, n := range snapshot.Networks {
				objs = append(objs, networkEntry{n})
			}
			return restoreTable(tx, tableNetwork, objs)
		},
	})
}

type networkEntry struct {
	*api.Network
}

func (n networkEntry) ID() string {
	return n.Network.ID
}

func (n networkEntry) Meta() api.Meta {
	return n.Network.Meta
}

func (n networkEntry) SetMeta(meta api.Meta) {
	n.Network.Meta = meta
}

func (n networkEntry) Copy() Object {
	return networkEntry{n.Network.Copy()}
}

func (n networkEntry) Record() interface{} {
	return n.Network.Copy()
}

// CreateNetwork adds a new network to the store.
// Returns ErrExist if the ID is already taken.
func CreateNetwork(tx Tx, n *api.Network) error {
	if conflicts(tx, tableNetwork, indexName, n.ID, n.SiteID, n.Name) {
		return errors.Wrapf(ErrNameConflict, "network %q in site %q", n.Name, n.SiteID)
	}
	return tx.create(tableNetwork, networkEntry{n})
}

// UpdateNetwork updates an existing network in the store.
// Returns ErrNotExist if the network doesn't exist.
func UpdateNetwork(tx Tx, n *api.Network) error {
	if conflicts(tx, tableNetwork, indexName, n.ID, n.SiteID, n.Name) {
		return errors.Wrapf(ErrNameConflict, "network %q in site %q", n.Name, n.SiteID)
	}
	return tx.update(tableNetwork, networkEntry{n})
}

// DeleteNetwork removes a network from the store.
// Returns ErrNotExist if the network doesn't exist.
func DeleteNetwork(tx Tx, id string) error {
	return tx.delete(tableNetwork, id)
}

// GetNetwork looks up a network by ID.
// Returns nil if the network doesn't exist.
func GetNetwork(tx ReadTx, id string) *api.Network {
	n := tx.get(tableNetwork, id)
	if n == nil {
		return nil
	}
	return n.(networkEntry).Network
}

// FindNetworks selects a set of networks and returns them.
func FindNetworks(tx ReadTx, by By) ([]*api.Network, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, bySite:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	networkList := []*api.Network{}
	appendResult := func(o Object) {
		networkList = append(networkList, o.(networkEntry).Network)
	}

	err := tx.find(tableNetwork, by, checkType, appendResult)
	return networkList, err
}
