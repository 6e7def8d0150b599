package api

// InterfaceKind discriminates the variants of NetworkInterface.
type InterfaceKind int

const (
	// InterfaceKindUnknown is never valid for a stored record.
	InterfaceKindUnknown InterfaceKind = iota
	// InterfaceKindReal is a physical port of a foundation.
	InterfaceKindReal
	// InterfaceKindAbstract is a purely logical interface.
	InterfaceKindAbstract
	// InterfaceKindAggregated is an abstract interface bonding others.
	InterfaceKindAggregated
)

func (k InterfaceKind) String() string {
	switch k {
	case InterfaceKindReal:
		return "Real"
	case InterfaceKindAbstract:
		return "Abstract"
	case InterfaceKindAggregated:
		return "Aggregated"
	}
	return "Unknown"
}

// NetworkInterface is a named interface attached to a Network.
type NetworkInterface struct {
	ID        string        `json:"id"`
	Meta      Meta          `json:"meta"`
	Kind      InterfaceKind `json:"kind"`
	Name      string        `json:"name"`
	NetworkID string        `json:"network_id"`

	Real *RealInterface `json:"real,omitempty"`
	// Abstract is set for both abstract and aggregated interfaces.
	Abstract   *AbstractInterface `json:"abstract,omitempty"`
	Aggregated *Aggregation       `json:"aggregated,omitempty"`
}

// RealInterface is the payload of a physical interface.
type RealInterface struct {
	FoundationID     string `json:"foundation_id"`
	PhysicalLocation string `json:"physical_location"`
	MAC              string `json:"mac,omitempty"`
	LinkName         string `json:"link_name,omitempty"`
	PXE              string `json:"pxe,omitempty"`
	IsProvisioning   bool   `json:"is_provisioning,omitempty"`
}

// AbstractInterface is the payload of a logical interface. It belongs to a
// Structure host.
type AbstractInterface struct {
	NetworkedID string `json:"networked_id"`
}

// Aggregation is the bonding payload of an aggregated interface.
type Aggregation struct {
	MasterID   string            `json:"master_id"`
	SlaveIDs   []string          `json:"slave_ids"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Type returns the record type name.
func (i *NetworkInterface) Type() string {
	return i.Kind.String()
}

// IsAbstract reports whether the interface is abstract or one of its
// subtypes.
func (i *NetworkInterface) IsAbstract() bool {
	return i.Kind == InterfaceKindAbstract || i.Kind == InterfaceKindAggregated
}

// Copy returns a deep copy of the interface.
func (i *NetworkInterface) Copy() *NetworkInterface {
	if i == nil {
		return nil
	}
	c := *i
	if i.Real != nil {
		r := *i.Real
		c.Real = &r
	}
	if i.Abstract != nil {
		a := *i.Abstract
		c.Abstract = &a
	}
	if i.Aggregated != nil {
		g := *i.Aggregated
		g.SlaveIDs = append([]string(nil), i.Aggregated.SlaveIDs...)
		if i.Aggregated.Parameters != nil {
			g.Parameters = make(map[string]string, len(i.Aggregated.Parameters))
			for k, v := range i.Aggregated.Parameters {
				g.Parameters[k] = v
			}
		}
		c.Aggregated = &g
	}
	return &c
}
