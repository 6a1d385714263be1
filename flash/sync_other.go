//go:build !linux && !freebsd && !darwin

package flash

import "os"

// fdatasync performs file descriptor sync via the portable fallback.
func fdatasync(f *os.File) error {
	return f.Sync()
}
