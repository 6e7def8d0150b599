// Package xnet opens the listeners the daemon serves on.
package xnet

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ParseProtoAddr parses an address as a protocol and address pair. An
// address without a protocol is a tcp one.
func ParseProtoAddr(s string) (string, string, error) {
	logrus.Debugf("parse proto addr: %s", s)
	parts := strings.SplitN(s, "://", 2)
	if len(parts) == 1 {
		return "tcp", s, nil
	}
	if parts[1] == "" {
		return "", "", errors.Errorf("no address is specified in '%s'", s)
	}
	switch parts[0] {
	case "tcp", "tcp4", "tcp6", "unix", "npipe":
		return parts[0], parts[1], nil
	default:
		return "", "", errors.Errorf("unsupported protocol '%s' in '%s'", parts[0], s)
	}
}

// ListenAddr listens on an address of the form accepted by
// ParseProtoAddr.
func ListenAddr(s string) (net.Listener, error) {
	proto, addr, err := ParseProtoAddr(s)
	if err != nil {
		return nil, err
	}
	l, err := Listen(proto, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", s)
	}
	return l, nil
}

// DialAddr connects to an address of the form accepted by ParseProtoAddr.
func DialAddr(s string, timeout time.Duration) (net.Conn, error) {
	proto, addr, err := ParseProtoAddr(s)
	if err != nil {
		return nil, err
	}
	return DialTimeout(proto, addr, timeout)
}

// removeStaleSocket removes a unix socket left behind by a previous run.
// Anything else at path is kept so that net.Listen reports it.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSocket == 0 {
		return nil
	}
	return os.Remove(path)
}
