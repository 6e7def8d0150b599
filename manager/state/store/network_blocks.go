package store

import (
	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	tableNetworkAddressBlock = "network_address_block"

	indexPair = "pair"
)

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNetworkAddressBlock,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexNetwork: optionalIndex(indexNetwork, false, func(o Object) []interface{} {
					return []interface{}{o.(networkAddressBlockEntry).NetworkID}
				}),
				indexBlock: optionalIndex(indexBlock, false, func(o Object) []interface{} {
					return []interface{}{o.(networkAddressBlockEntry).AddressBlockID}
				}),
				indexPair: optionalIndex(indexPair, true, func(o Object) []interface{} {
					n := o.(networkAddressBlockEntry)
					return []interface{}{n.NetworkID, n.AddressBlockID}
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.NetworkAddressBlocks, err = FindNetworkAddressBlocks(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.NetworkAddressBlocks))
			for _, n := range snapshot.NetworkAddressBlocks {
				objs = append(objs, networkAddressBlockEntry{n})
			}
			return restoreTable(tx, tableNetworkAddressBlock, objs)
		},
	})
}

type networkAddressBlockEntry struct {
	*api.NetworkAddressBlock
}

func (n networkAddressBlockEntry) ID() string {
	return n.NetworkAddressBlock.ID
}

func (n networkAddressBlockEntry) Meta() api.Meta {
	return n.NetworkAddressBlock.Meta
}

func (n networkAddressBlockEntry) SetMeta(meta api.Meta) {
	n.NetworkAddressBlock.Meta = meta
}

func (n networkAddressBlockEntry) Copy() Object {
	return networkAddressBlockEntry{n.NetworkAddressBlock.Copy()}
}

func (n networkAddressBlockEntry) Record() interface{} {
	return n.NetworkAddressBlock.Copy()
}

// CreateNetworkAddressBlock joins a block to a network.
// Returns ErrNameConflict if the pair is already joined.
func CreateNetworkAddressBlock(tx Tx, n *api.NetworkAddressBlock) error {
	if conflicts(tx, tableNetworkAddressBlock, indexPair, n.ID, n.NetworkID, n.AddressBlockID) {
		return errors.Wrapf(ErrNameConflict, "address block %s is already attached to network %s", n.AddressBlockID, n.NetworkID)
	}
	return tx.create(tableNetworkAddressBlock, networkAddressBlockEntry{n})
}

// UpdateNetworkAddressBlock updates the tag settings of a join.
// Returns ErrNotExist if the join doesn't exist.
func UpdateNetworkAddressBlock(tx Tx, n *api.NetworkAddressBlock) error {
	if conflicts(tx, tableNetworkAddressBlock, indexPair, n.ID, n.NetworkID, n.AddressBlockID) {
		return errors.Wrapf(ErrNameConflict, "address block %s is already attached to network %s", n.AddressBlockID, n.NetworkID)
	}
	return tx.update(tableNetworkAddressBlock, networkAddressBlockEntry{n})
}

// DeleteNetworkAddressBlock removes a join.
// Returns ErrNotExist if the join doesn't exist.
func DeleteNetworkAddressBlock(tx Tx, id string) error {
	return tx.delete(tableNetworkAddressBlock, id)
}

// GetNetworkAddressBlock looks up a join by ID.
func GetNetworkAddressBlock(tx ReadTx, id string) *api.NetworkAddressBlock {
	n := tx.get(tableNetworkAddressBlock, id)
	if n == nil {
		return nil
	}
	return n.(networkAddressBlockEntry).NetworkAddressBlock
}

// GetNetworkAddressBlockByPair looks up the join of a network and a block.
func GetNetworkAddressBlockByPair(tx ReadTx, networkID, blockID string) *api.NetworkAddressBlock {
	n := tx.lookup(tableNetworkAddressBlock, indexPair, networkID, blockID)
	if n == nil {
		return nil
	}
	return n.(networkAddressBlockEntry).NetworkAddressBlock.Copy()
}

// FindNetworkAddressBlocks selects a set of joins and returns them.
func FindNetworkAddressBlocks(tx ReadTx, by By) ([]*api.NetworkAddressBlock, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, byNetwork, byBlock:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	joinList := []*api.NetworkAddressBlock{}
	appendResult := func(o Object) {
		joinList = append(joinList, o.(networkAddressBlockEntry).NetworkAddressBlock)
	}

	err := tx.find(tableNetworkAddressBlock, by, checkType, appendResult)
	return joinList, err
}
