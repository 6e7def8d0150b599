package store

import (
	"net/netip"

	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	tableAddressBlock = "address_block"

	// indexInterval orders the blocks of a site by family and subnet.
	indexInterval = "interval"
	// indexSubnet orders every block by family and subnet, across sites.
	indexSubnet = "subnet"
)

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableAddressBlock,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexSite: optionalIndex(indexSite, false, func(o Object) []interface{} {
					return []interface{}{o.(addressBlockEntry).SiteID}
				}),
				indexName: optionalIndex(indexName, true, func(o Object) []interface{} {
					b := o.(addressBlockEntry)
					return []interface{}{b.SiteID, b.Name}
				}),
				indexInterval: optionalIndex(indexInterval, true, func(o Object) []interface{} {
					b := o.(addressBlockEntry)
					return []interface{}{b.SiteID, b.Subnet}
				}),
				indexSubnet: optionalIndex(indexSubnet, false, func(o Object) []interface{} {
					return []interface{}{o.(addressBlockEntry).Subnet}
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.AddressBlocks, err = FindAddressBlocks(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.AddressBlocks))
			for _, b := range snapshot.AddressBlocks {
				objs = append(objs, addressBlockEntry{b})
			}
			return restoreTable(tx, tableAddressBlock, objs)
		},
	})
}

type addressBlockEntry struct {
	*api.AddressBlock
}

func (b addressBlockEntry) ID() string {
	return b.AddressBlock.ID
}

func (b addressBlockEntry) Meta() api.Meta {
	return b.AddressBlock.Meta
}

func (b addressBlockEntry) SetMeta(meta api.Meta) {
	b.AddressBlock.Meta = meta
}

func (b addressBlockEntry) Copy() Object {
	return addressBlockEntry{b.AddressBlock.Copy()}
}

func (b addressBlockEntry) Record() interface{} {
	return b.AddressBlock.Copy()
}

func checkAddressBlock(tx ReadTx, b *api.AddressBlock) error {
	if conflicts(tx, tableAddressBlock, indexName, b.ID, b.SiteID, b.Name) {
		return errors.Wrapf(ErrNameConflict, "address block %q in site %q", b.Name, b.SiteID)
	}
	if conflicts(tx, tableAddressBlock, indexInterval, b.ID, b.SiteID, b.Subnet) {
		return errors.Wrapf(ErrIntervalConflict, "subnet %s in site %q", b.Subnet, b.SiteID)
	}
	return nil
}

// CreateAddressBlock adds a new address block to the store.
// Returns ErrExist if the ID is already taken.
func CreateAddressBlock(tx Tx, b *api.AddressBlock) error {
	if err := checkAddressBlock(tx, b); err != nil {
		return err
	}
	return tx.create(tableAddressBlock, addressBlockEntry{b})
}

// UpdateAddressBlock updates an existing address block in the store.
// Returns ErrNotExist if the block doesn't exist.
func UpdateAddressBlock(tx Tx, b *api.AddressBlock) error {
	if err := checkAddressBlock(tx, b); err != nil {
		return err
	}
	return tx.update(tableAddressBlock, addressBlockEntry{b})
}

// DeleteAddressBlock removes an address block from the store.
// Returns ErrNotExist if the block doesn't exist.
func DeleteAddressBlock(tx Tx, id string) error {
	return tx.delete(tableAddressBlock, id)
}

// GetAddressBlock looks up an address block by ID.
// Returns nil if the block doesn't exist.
func GetAddressBlock(tx ReadTx, id string) *api.AddressBlock {
	b := tx.get(tableAddressBlock, id)
	if b == nil {
		return nil
	}
	return b.(addressBlockEntry).AddressBlock
}

// GetAddressBlockByName looks up an address block by site and name.
func GetAddressBlockByName(tx ReadTx, siteID, name string) *api.AddressBlock {
	b := tx.lookup(tableAddressBlock, indexName, siteID, name)
	if b == nil {
		return nil
	}
	return b.(addressBlockEntry).AddressBlock.Copy()
}

// FindAddressBlocks selects a set of address blocks and returns them.
func FindAddressBlocks(tx ReadTx, by By) ([]*api.AddressBlock, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, bySite:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	blockList := []*api.AddressBlock{}
	appendResult := func(o Object) {
		blockList = append(blockList, o.(addressBlockEntry).AddressBlock)
	}

	err := tx.find(tableAddressBlock, by, checkType, appendResult)
	return blockList, err
}

// AddressBlocksBelow returns the blocks of a site and family whose subnet
// is at most high, in descending subnet order. The walk stops after the
// first block ending before low, since every block below it ends earlier
// still.
func AddressBlocksBelow(tx ReadTx, siteID string, low, high netip.Addr) ([]*api.AddressBlock, error) {
	it, err := tx.txn().ReverseLowerBound(tableAddressBlock, indexInterval, siteID, high)
	if err != nil {
		return nil, err
	}
	var blocks []*api.AddressBlock
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(addressBlockEntry)
		if b.SiteID != siteID || b.Subnet.Is4() != high.Is4() {
			break
		}
		blocks = append(blocks, b.AddressBlock.Copy())
		if b.MaxAddress.Less(low) {
			break
		}
	}
	return blocks, nil
}

// AddressBlocksContaining returns the blocks of every site whose range
// contains addr, ordered by descending subnet.
func AddressBlocksContaining(tx ReadTx, addr netip.Addr) ([]*api.AddressBlock, error) {
	it, err := tx.txn().ReverseLowerBound(tableAddressBlock, indexSubnet, addr, keyEnd{})
	if err != nil {
		return nil, err
	}
	var blocks []*api.AddressBlock
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(addressBlockEntry)
		if b.Subnet.Is4() != addr.Is4() {
			break
		}
		if !b.MaxAddress.Less(addr) {
			blocks = append(blocks, b.AddressBlock.Copy())
		}
	}
	return blocks, nil
}
