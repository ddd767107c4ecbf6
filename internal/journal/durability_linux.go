//go:build linux

package journal

import (
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// durabilityBarrier flushes f to durable media before returning (§4.3.2).
// On Linux, real files get unix.Fdatasync directly on the descriptor,
// which is cheaper than a full fsync since it skips metadata that does not
// affect the bytes we just wrote. Anything else (an in-memory afero file
// used by tests) falls back to its own Sync, which is a no-op there by
// design — the in-memory backing has no durability to simulate.
func durabilityBarrier(f afero.File) error {
	if osFile, ok := f.(*os.File); ok {
		return unix.Fdatasync(int(osFile.Fd()))
	}
	return f.Sync()
}
