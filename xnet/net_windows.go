//go:build windows
// +build windows

package xnet

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity grants the API pipe to administrators and the local system
// account only.
const pipeSecurity = "D:P(A;;GA;;;BA)(A;;GA;;;SY)"

// Listen wraps net.Listen. npipe addresses are served on a named pipe and
// unix sockets left behind by a previous run are removed.
func Listen(proto string, addr string) (net.Listener, error) {
	switch proto {
	case "npipe":
		return winio.ListenPipe(addr, &winio.PipeConfig{SecurityDescriptor: pipeSecurity})
	case "unix":
		if err := removeStaleSocket(addr); err != nil {
			return nil, err
		}
	}
	return net.Listen(proto, addr)
}

// DialTimeout wraps net.DialTimeout and winio.DialPipe.
func DialTimeout(proto string, addr string, timeout time.Duration) (net.Conn, error) {
	if proto == "npipe" {
		return winio.DialPipe(addr, &timeout)
	}
	return net.DialTimeout(proto, addr, timeout)
}
