package journal

import "os"

// fileOpenFlags returns the flags used for every journal file open: create
// if missing, read-write, never truncate (pages are overwritten in place
// via WriteAt).
func fileOpenFlags() int {
	return os.O_RDWR | os.O_CREATE
}
