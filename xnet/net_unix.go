//go:build !windows
// +build !windows

package xnet

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// Listen wraps net.Listen. A unix socket left behind by a previous run is
// removed first.
func Listen(proto string, addr string) (net.Listener, error) {
	switch proto {
	case "npipe":
		return nil, errors.New("named pipes are only supported on windows")
	case "unix":
		if err := removeStaleSocket(addr); err != nil {
			return nil, err
		}
	}
	return net.Listen(proto, addr)
}

// DialTimeout wraps net.DialTimeout.
func DialTimeout(proto string, addr string, timeout time.Duration) (net.Conn, error) {
	if proto == "npipe" {
		return nil, errors.New("named pipes are only supported on windows")
	}
	return net.DialTimeout(proto, addr, timeout)
}
