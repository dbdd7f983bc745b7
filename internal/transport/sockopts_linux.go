//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket enables keepalive and disables Nagle on the control
// connection. Telemetry is a steady trickle of small lines; batching them
// only adds latency to outbound commands.
func controlSocket(network, address string, raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30)
	})
	if err != nil {
		return err
	}
	return sockErr
}
