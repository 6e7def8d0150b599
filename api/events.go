package api

// Action is the kind of change an Event reports.
type Action int

const (
	// ActionCreate is published when a record is created.
	ActionCreate Action = iota
	// ActionUpdate is published when a record is updated.
	ActionUpdate
	// ActionDelete is published when a record is deleted.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "unknown"
}

// Event reports a committed change to one record. Object holds a copy of
// the record after the change (before it, for deletes).
type Event struct {
	Action Action
	Table  string
	ID     string
	Object interface{}
}

// EventCommit is published after the events of one transaction.
type EventCommit struct {
	Version uint64
}

// StoreSnapshot is the full content of the store.
type StoreSnapshot struct {
	Version              uint64                 `json:"version"`
	AddressBlocks        []*AddressBlock        `json:"address_blocks"`
	Addresses            []*BaseAddress         `json:"addresses"`
	Networked            []*Networked           `json:"networked"`
	NetworkInterfaces    []*NetworkInterface    `json:"network_interfaces"`
	Networks             []*Network             `json:"networks"`
	NetworkAddressBlocks []*NetworkAddressBlock `json:"network_address_blocks"`
}
