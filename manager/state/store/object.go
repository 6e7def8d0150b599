package store

import (
	"github.com/contractor/addrspace/api"
	memdb "github.com/hashicorp/go-memdb"
)

// Object is a generic object that can be handled by the store.
type Object interface {
	ID() string          // Get ID
	Meta() api.Meta      // Retrieve metadata
	SetMeta(api.Meta)    // Set metadata
	Copy() Object        // Return a deep copy of this object
	Record() interface{} // Return a deep copy of the wrapped api record
}

// ObjectStoreConfig provides the necessary methods to store a particular object
// type inside MemoryStore.
type ObjectStoreConfig struct {
	Table   *memdb.TableSchema
	Save    func(ReadTx, *api.StoreSnapshot) error
	Restore func(Tx, *api.StoreSnapshot) error
}

func register(os ObjectStoreConfig) {
	objectStorers = append(objectStorers, os)
	schema.Tables[os.Table.Name] = os.Table
}
