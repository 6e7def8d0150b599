package api

// NetworkedKind discriminates the variants of Networked.
type NetworkedKind int

const (
	// NetworkedKindPlain is a host with no compute foundation.
	NetworkedKindPlain NetworkedKind = iota
	// NetworkedKindStructure is a host built on a foundation.
	NetworkedKindStructure
)

func (k NetworkedKind) String() string {
	if k == NetworkedKindStructure {
		return "Structure"
	}
	return "Networked"
}

// Networked is a host that owns addresses.
type Networked struct {
	ID       string        `json:"id"`
	Meta     Meta          `json:"meta"`
	Kind     NetworkedKind `json:"kind"`
	SiteID   string        `json:"site_id"`
	Hostname string        `json:"hostname"`

	Structure *Structure `json:"structure,omitempty"`
}

// Structure is the payload of a host built on a compute foundation.
type Structure struct {
	FoundationID string `json:"foundation_id"`
}

// AsStructure returns the structure payload if the host is a Structure.
func (n *Networked) AsStructure() (*Structure, bool) {
	if n.Kind != NetworkedKindStructure || n.Structure == nil {
		return nil, false
	}
	return n.Structure, true
}

// Copy returns a deep copy of the host.
func (n *Networked) Copy() *Networked {
	if n == nil {
		return nil
	}
	c := *n
	if n.Structure != nil {
		s := *n.Structure
		c.Structure = &s
	}
	return &c
}
