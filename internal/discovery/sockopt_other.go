//go:build !unix

package discovery

import "syscall"

// Go enables SO_BROADCAST on UDP sockets itself on these platforms.
func controlSocket(_, _ string, _ syscall.RawConn) error {
	return nil
}
