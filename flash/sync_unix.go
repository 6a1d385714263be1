//go:build linux || freebsd

package flash

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync performs file descriptor sync.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees: the mapping
// flush has already queued the data pages.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
