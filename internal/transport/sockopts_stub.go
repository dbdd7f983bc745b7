//go:build !linux

package transport

import "syscall"

func controlSocket(network, address string, raw syscall.RawConn) error {
	return nil
}
