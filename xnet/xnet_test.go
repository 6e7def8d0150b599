package xnet

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtoAddr(t *testing.T) {
	for _, c := range []struct {
		in          string
		proto, addr string
		fails       bool
	}{
		{in: "127.0.0.1:8080", proto: "tcp", addr: "127.0.0.1:8080"},
		{in: "tcp://[::1]:80", proto: "tcp", addr: "[::1]:80"},
		{in: "unix:///run/addrspace.sock", proto: "unix", addr: "/run/addrspace.sock"},
		{in: "unix://", fails: true},
		{in: "udp://127.0.0.1:53", fails: true},
	} {
		proto, addr, err := ParseProtoAddr(c.in)
		if c.fails {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.proto, proto, c.in)
		assert.Equal(t, c.addr, addr, c.in)
	}
}

func TestListenUnixReplacesStaleSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets")
	}
	addr := "unix://" + filepath.Join(t.TempDir(), "api.sock")

	l, err := ListenAddr(addr)
	require.NoError(t, err)
	// Leave the socket file behind as a crashed daemon would.
	l.(interface{ SetUnlinkOnClose(bool) }).SetUnlinkOnClose(false)
	require.NoError(t, l.Close())

	l, err = ListenAddr(addr)
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := DialAddr(addr, time.Second)
	require.NoError(t, err)
	conn.Close()
	require.NoError(t, <-accepted)
}
