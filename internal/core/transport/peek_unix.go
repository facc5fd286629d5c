//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// peekSocket checks a socket without consuming data. An orderly shutdown by
// the peer reads as zero bytes; no data yet reads as EAGAIN.
func peekSocket(sc syscall.Conn) bool {
	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	alive := true
	var buf [1]byte
	ctrlErr := raw.Control(func(fd uintptr) {
		n, _, rerr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case rerr == nil:
			alive = n > 0
		case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EWOULDBLOCK), errors.Is(rerr, unix.EINTR):
			alive = true
		default:
			alive = false
		}
	})
	if ctrlErr != nil {
		return false
	}
	return alive
}
