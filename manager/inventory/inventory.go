// Package inventory loads sites described in YAML into the manager.
//
// An inventory looks like:
//
//	sites:
//	  - id: dc1
//	    blocks:
//	      - name: lan
//	        subnet: 10.0.0.0/24
//	        gateway_offset: 1
//	        reservations:
//	          - offset: 5
//	            reason: printer
//	    networks:
//	      - name: prod
//	        blocks:
//	          - block: lan
//	            vlan: 20
//	            tagged: true
//	    hosts:
//	      - hostname: web01
//	        foundation: rack1-u4
//	        interfaces:
//	          - name: eth0
//	            network: prod
//	            physical_location: port 1
//	            mac: aabb.ccdd.eeff
//	            provisioning: true
//	        addresses:
//	          - block: lan
//	            interface: eth0
//	            primary: true
//
// Addresses without an offset are allocated.
package inventory

import (
	"context"
	"io"
	"math/big"
	"os"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/allocator"
	"github.com/contractor/addrspace/manager/hosts"
	"github.com/contractor/addrspace/manager/registry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Offset is a block offset. It accepts integers of any size.
type Offset struct {
	*big.Int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Offset) UnmarshalYAML(node *yaml.Node) error {
	x, ok := new(big.Int).SetString(node.Value, 0)
	if !ok || node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: %q is not an offset", node.Line, node.Value)
	}
	o.Int = x
	return nil
}

// Inventory is the content of an inventory file.
type Inventory struct {
	Sites []Site `yaml:"sites"`
}

// Site groups the records of one site.
type Site struct {
	ID       string    `yaml:"id"`
	Blocks   []Block   `yaml:"blocks"`
	Networks []Network `yaml:"networks"`
	Hosts    []Host    `yaml:"hosts"`
}

// Block describes an address block and its reserved offsets.
type Block struct {
	Name          string        `yaml:"name"`
	Subnet        string        `yaml:"subnet"`
	Prefix        int           `yaml:"prefix"`
	GatewayOffset *Offset       `yaml:"gateway_offset"`
	Reservations  []Reservation `yaml:"reservations"`
}

// Reservation keeps an offset out of circulation.
type Reservation struct {
	Offset Offset `yaml:"offset"`
	Reason string `yaml:"reason"`
}

// Network describes a network and the blocks attached to it.
type Network struct {
	Name   string       `yaml:"name"`
	MTU    int          `yaml:"mtu"`
	Blocks []Attachment `yaml:"blocks"`
}

// Attachment joins a block, by name, to a network.
type Attachment struct {
	Block  string `yaml:"block"`
	VLAN   int    `yaml:"vlan"`
	Tagged bool   `yaml:"tagged"`
}

// Host describes a host with its interfaces and addresses.
type Host struct {
	Hostname   string      `yaml:"hostname"`
	Foundation string      `yaml:"foundation"`
	Interfaces []Interface `yaml:"interfaces"`
	Addresses  []Address   `yaml:"addresses"`
}

// Interface describes an interface of a host. Interfaces are real unless
// Abstract is set.
type Interface struct {
	Name             string `yaml:"name"`
	Network          string `yaml:"network"`
	Abstract         bool   `yaml:"abstract"`
	PhysicalLocation string `yaml:"physical_location"`
	MAC              string `yaml:"mac"`
	Provisioning     bool   `yaml:"provisioning"`
}

// Address describes an address of a host, allocated when Offset is
// missing.
type Address struct {
	Block        string  `yaml:"block"`
	Interface    string  `yaml:"interface"`
	SubInterface *int    `yaml:"sub_interface"`
	Primary      bool    `yaml:"primary"`
	Offset       *Offset `yaml:"offset"`
}

// Load decodes an inventory. Unknown keys are errors.
func Load(r io.Reader) (*Inventory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var inv Inventory
	if err := dec.Decode(&inv); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding inventory")
	}
	return &inv, nil
}

// LoadFile decodes the inventory at path.
func LoadFile(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Summary counts the records an Apply created.
type Summary struct {
	Blocks       int
	Reservations int
	Networks     int
	Hosts        int
	Interfaces   int
	Addresses    int
}

// Apply creates the records of the inventory through m, site by site. It
// stops at the first failure; records created before it are kept.
func (inv *Inventory) Apply(ctx context.Context, m *manager.Manager) (Summary, error) {
	var sum Summary
	for _, site := range inv.Sites {
		ctx := log.WithFields(ctx, logrus.Fields{"site.id": site.ID})
		if err := applySite(ctx, m, site, &sum); err != nil {
			return sum, errors.Wrapf(err, "site %s", site.ID)
		}
	}
	return sum, nil
}

func applySite(ctx context.Context, m *manager.Manager, site Site, sum *Summary) error {
	blocks := map[string]string{}
	for _, b := range site.Blocks {
		spec := registry.BlockSpec{SiteID: site.ID, Name: b.Name, Subnet: b.Subnet, Prefix: b.Prefix}
		if b.GatewayOffset != nil {
			spec.GatewayOffset = b.GatewayOffset.Int
		}
		created, err := m.CreateAddressBlock(ctx, spec)
		if err != nil {
			return errors.Wrapf(err, "block %s", b.Name)
		}
		blocks[b.Name] = created.ID
		sum.Blocks++

		for _, r := range b.Reservations {
			if _, err := m.Reserve(ctx, created.ID, r.Offset.Int, r.Reason); err != nil {
				return errors.Wrapf(err, "reservation %v of block %s", r.Offset, b.Name)
			}
			sum.Reservations++
		}
	}

	networks := map[string]string{}
	for _, n := range site.Networks {
		created, err := m.CreateNetwork(ctx, registry.NetworkSpec{SiteID: site.ID, Name: n.Name, MTU: n.MTU})
		if err != nil {
			return errors.Wrapf(err, "network %s", n.Name)
		}
		networks[n.Name] = created.ID
		sum.Networks++

		for _, a := range n.Blocks {
			blockID, ok := blocks[a.Block]
			if !ok {
				return errors.Errorf("network %s: unknown block %s", n.Name, a.Block)
			}
			if _, err := m.AttachBlock(ctx, created.ID, blockID, a.VLAN, a.Tagged); err != nil {
				return errors.Wrapf(err, "network %s", n.Name)
			}
		}
	}

	for _, h := range site.Hosts {
		if err := applyHost(ctx, m, site.ID, h, blocks, networks, sum); err != nil {
			return errors.Wrapf(err, "host %s", h.Hostname)
		}
	}
	return nil
}

func applyHost(ctx context.Context, m *manager.Manager, siteID string, h Host, blocks, networks map[string]string, sum *Summary) error {
	host, err := m.CreateNetworked(ctx, hosts.Spec{SiteID: siteID, Hostname: h.Hostname, FoundationID: h.Foundation})
	if err != nil {
		return err
	}
	sum.Hosts++

	for _, i := range h.Interfaces {
		iface := &api.NetworkInterface{
			Name:      i.Name,
			NetworkID: networks[i.Network],
		}
		if iface.NetworkID == "" {
			return errors.Errorf("interface %s: unknown network %s", i.Name, i.Network)
		}
		if i.Abstract {
			iface.Kind = api.InterfaceKindAbstract
			iface.Abstract = &api.AbstractInterface{NetworkedID: host.ID}
		} else {
			iface.Kind = api.InterfaceKindReal
			iface.Real = &api.RealInterface{
				FoundationID:     h.Foundation,
				PhysicalLocation: i.PhysicalLocation,
				MAC:              i.MAC,
				IsProvisioning:   i.Provisioning,
			}
		}
		if _, err := m.CreateInterface(ctx, iface); err != nil {
			return errors.Wrapf(err, "interface %s", i.Name)
		}
		sum.Interfaces++
	}

	for _, a := range h.Addresses {
		blockID, ok := blocks[a.Block]
		if !ok {
			return errors.Errorf("address on %s: unknown block %s", a.Interface, a.Block)
		}
		if a.Offset == nil {
			created, err := m.NextAddress(ctx, allocator.Request{
				BlockID:       blockID,
				NetworkedID:   host.ID,
				InterfaceName: a.Interface,
				SubInterface:  a.SubInterface,
				IsPrimary:     a.Primary,
			})
			if err != nil {
				return errors.Wrapf(err, "address on %s", a.Interface)
			}
			if created != nil {
				sum.Addresses++
			}
			continue
		}
		_, err := m.CreateAddress(ctx, api.NewHostAddress(blockID, a.Offset.Int, &api.HostAddress{
			NetworkedID:   host.ID,
			InterfaceName: a.Interface,
			SubInterface:  a.SubInterface,
			IsPrimary:     a.Primary,
		}))
		if err != nil {
			return errors.Wrapf(err, "address on %s", a.Interface)
		}
		sum.Addresses++
	}
	return nil
}
