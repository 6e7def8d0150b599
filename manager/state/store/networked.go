package store

import (
	"strings"

	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	tableNetworked = "networked"

	indexHostname = "hostname"
)

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: tableNetworked,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: idIndex(),
				indexSite: optionalIndex(indexSite, false, func(o Object) []interface{} {
					return []interface{}{o.(networkedEntry).SiteID}
				}),
				indexHostname: optionalIndex(indexHostname, true, func(o Object) []interface{} {
					n := o.(networkedEntry)
					return []interface{}{n.SiteID, strings.ToLower(n.Hostname)}
				}),
				indexFoundation: optionalIndex(indexFoundation, false, func(o Object) []interface{} {
					s, ok := o.(networkedEntry).AsStructure()
					if !ok {
						return nil
					}
					return []interface{}{s.FoundationID}
				}),
			},
		},
		Save: func(tx ReadTx, snapshot *api.StoreSnapshot) error {
			var err error
			snapshot.Networked, err = FindNetworked(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *api.StoreSnapshot) error {
			objs := make([]Object, 0, len(snapshot.Networked))
			for _, n := range snapshot.Networked {
				objs = append(objs, networkedEntry{n})
			}
			return restoreTable(tx, tableNetworked, objs)
		},
	})
}

type networkedEntry struct {
	*api.Networked
}

func (n networkedEntry) ID() string {
	return n.Networked.ID
}

func (n networkedEntry) Meta() api.Meta {
	return n.Networked.Meta
}

func (n networkedEntry) SetMeta(meta api.Meta) {
	n.Networked.Meta = meta
}

func (n networkedEntry) Copy() Object {
	return networkedEntry{n.Networked.Copy()}
}

func (n networkedEntry) Record() interface{} {
	return n.Networked.Copy()
}

func checkNetworked(tx ReadTx, n *api.Networked) error {
	if conflicts(tx, tableNetworked, indexHostname, n.ID, n.SiteID, strings.ToLower(n.Hostname)) {
		return errors.Wrapf(ErrNameConflict, "hostname %q in site %q", n.Hostname, n.SiteID)
	}
	return nil
}

// CreateNetworked adds a new host to the store.
// Returns ErrExist if the ID is already taken, and ErrNameConflict if the
// hostname is used in the site, ignoring case.
func CreateNetworked(tx Tx, n *api.Networked) error {
	if err := checkNetworked(tx, n); err != nil {
		return err
	}
	return tx.create(tableNetworked, networkedEntry{n})
}

// UpdateNetworked updates an existing host in the store.
// Returns ErrNotExist if the host doesn't exist.
func UpdateNetworked(tx Tx, n *api.Networked) error {
	if err := checkNetworked(tx, n); err != nil {
		return err
	}
	return tx.update(tableNetworked, networkedEntry{n})
}

// DeleteNetworked removes a host from the store.
// Returns ErrNotExist if the host doesn't exist.
func DeleteNetworked(tx Tx, id string) error {
	return tx.delete(tableNetworked, id)
}

// GetNetworked looks up a host by ID.
// Returns nil if the host doesn't exist.
func GetNetworked(tx ReadTx, id string) *api.Networked {
	n := tx.get(tableNetworked, id)
	if n == nil {
		return nil
	}
	return n.(networkedEntry).Networked
}

// GetNetworkedByHostname looks up a host by site and hostname, ignoring
// case.
func GetNetworkedByHostname(tx ReadTx, siteID, hostname string) *api.Networked {
	n := tx.lookup(tableNetworked, indexHostname, siteID, strings.ToLower(hostname))
	if n == nil {
		return nil
	}
	return n.(networkedEntry).Networked.Copy()
}

// FindNetworked selects a set of hosts and returns them.
func FindNetworked(tx ReadTx, by By) ([]*api.Networked, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byAll, bySite, byFoundation:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	networkedList := []*api.Networked{}
	appendResult := func(o Object) {
		networkedList = append(networkedList, o.(networkedEntry).Networked)
	}

	err := tx.find(tableNetworked, by, checkType, appendResult)
	return networkedList, err
}
