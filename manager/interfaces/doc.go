// Package interfaces manages the network interfaces of foundations and
// hosts, and composes the configuration view of an interface from the
// addresses bound to it.
package interfaces
