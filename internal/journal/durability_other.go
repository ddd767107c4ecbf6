//go:build !linux

package journal

import "github.com/spf13/afero"

// durabilityBarrier flushes f to durable media before returning (§4.3.2).
// Outside Linux there is no portable Fdatasync; (*os.File).Sync is the best
// effort available, matching §4.3.2's "on systems without a filesystem
// fsync semantically equivalent to media durability, this is the best
// effort available."
func durabilityBarrier(f afero.File) error {
	return f.Sync()
}
