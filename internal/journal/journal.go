// Package journal implements the two-page atomic boot journal (C3): the
// durable, crash-safe record of boot-controller state described in §4.3 of
// the specification. It is built on an afero.Fs so production code runs
// against the real filesystem while tests drive the exact same logic
// against an in-memory one to simulate torn writes deterministically
// (§9's design note on testable backings).
package journal

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

// ErrIo wraps unrecoverable filesystem errors (§7: IoError).
var ErrIo = errors.New("journal: io error")

// ErrLocked is returned by OpenOrInit when another process already holds the
// journal's single-writer lock (§5).
var ErrLocked = errors.New("journal: locked by another process")

// pageAOffset and pageBOffset are the two fixed page offsets (§3.2).
const (
	pageAOffset = 0
	pageBOffset = record.PageSize
	fileSize    = 2 * record.PageSize
)

// Store is a Handle onto an open journal file (§9's design note: explicit
// Handle value instead of module-scope state). It is not safe for
// concurrent use by multiple goroutines; the single-writer invariant (§5)
// is enforced across processes via an OS file lock, not across goroutines
// within one.
type Store struct {
	fs   afero.Fs
	path string
	lock *flock.Flock
	log  *logging.Logger

	mu sync.Mutex
}

// Option configures OpenOrInit.
type Option func(*options)

type options struct {
	fs  afero.Fs
	log *logging.Logger
}

// WithFs overrides the filesystem backing (default afero.NewOsFs()). Tests
// pass afero.NewMemMapFs() here.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger attaches a logger used for corruption/healing notices.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// OpenOrInit opens an existing journal at path, or creates one with two
// copies of the default record if the file is missing or shorter than two
// pages (§4.3: open_or_init). On a real filesystem it also acquires a
// non-blocking advisory lock enforcing the single-writer invariant of §5;
// ErrLocked is returned if another process holds it.
func OpenOrInit(path string, opts ...Option) (*Store, error) {
	o := options{fs: afero.NewOsFs(), log: logging.Default().Module("journal")}
	for _, fn := range opts {
		fn(&o)
	}

	s := &Store{fs: o.fs, path: path, log: o.log}

	if _, isOs := o.fs.(*afero.OsFs); isOs {
		lockPath := path + ".lock"
		if dir := filepath.Dir(lockPath); dir != "." {
			_ = o.fs.MkdirAll(dir, 0o755)
		}
		l := flock.New(lockPath)
		ok, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %v", ErrIo, err)
		}
		if !ok {
			return nil, ErrLocked
		}
		s.lock = l
	}

	info, err := o.fs.Stat(path)
	if err != nil || info.Size() < fileSize {
		def := record.NewDefault()
		if err := s.writeBothPages(def); err != nil {
			s.releaseLock()
			return nil, err
		}
		return s, nil
	}
	return s, nil
}

// Close releases the OS resources associated with the journal (§4.3: close).
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLock()
	return nil
}

func (s *Store) releaseLock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
}

// Read executes the recovery algorithm of §4.3.1 and returns the chosen
// record. It never returns an invalid record: if both pages fail
// validation, it logs the corruption, writes a fresh default record to
// both pages, and returns that instead (§7: CorruptionError is handled
// locally, not propagated as failure).
func (s *Store) Read() (record.BootRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return record.BootRecord{}, fmt.Errorf("%w: read: %v", ErrIo, err)
	}
	if len(raw) < fileSize {
		return record.BootRecord{}, fmt.Errorf("%w: journal file too short (%d bytes)", ErrIo, len(raw))
	}

	pageA := raw[pageAOffset : pageAOffset+record.PageSize]
	pageB := raw[pageBOffset : pageBOffset+record.PageSize]

	recA, okA := decodeValid(pageA)
	recB, okB := decodeValid(pageB)

	switch {
	case okA && okB:
		if recB.BootCount > recA.BootCount {
			s.log.Warn("healing page A from page B", "boot_count", recB.BootCount)
			if err := s.writePage(pageAOffset, recB); err != nil {
				return recB, err
			}
			return recB, nil
		}
		if recA.BootCount > recB.BootCount {
			s.log.Warn("healing page B from page A", "boot_count", recA.BootCount)
			if err := s.writePage(pageBOffset, recA); err != nil {
				return recA, err
			}
		}
		return recA, nil // tie or A ahead -> Page A
	case okA && !okB:
		s.log.Warn("healing page B from page A", "boot_count", recA.BootCount)
		if err := s.writePage(pageBOffset, recA); err != nil {
			return recA, err
		}
		return recA, nil
	case !okA && okB:
		s.log.Warn("healing page A from page B", "boot_count", recB.BootCount)
		if err := s.writePage(pageAOffset, recB); err != nil {
			return recB, err
		}
		return recB, nil
	default:
		s.log.Error("both journal pages corrupt, resetting to defaults")
		def := record.NewDefault()
		if err := s.writeBothPagesLocked(def); err != nil {
			return def, err
		}
		return def, nil
	}
}

// Write refreshes timestamp and CRC32, then durably commits r to both
// pages in order (§4.3: write). A partial failure (A written, B failed) is
// returned as an error but leaves the journal recoverable, since the next
// Read will heal B from A (§4.3.1).
func (s *Store) Write(r record.BootRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeBothPagesLocked(r)
}

// writeBothPages is writeBothPagesLocked without assuming the caller holds
// s.mu (used by OpenOrInit before any other goroutine can see s).
func (s *Store) writeBothPages(r record.BootRecord) error {
	return s.writeBothPagesLocked(r)
}

func (s *Store) writeBothPagesLocked(r record.BootRecord) error {
	r.Timestamp = uint64(time.Now().Unix())
	r.Trailer = record.Magic
	if r.Version == 0 {
		r.Version = record.LayoutVersion
	}
	r.CRC32 = record.ComputeCRC(r)

	f, err := s.fs.OpenFile(s.path, fileOpenFlags(), 0o644)
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrIo, err)
	}
	defer f.Close()

	buf := record.Encode(r)

	// Page A must be durable on media before any byte of page B is
	// written (§4.3.2): a torn write or crash is then confined to
	// whichever page was in flight.
	if _, err := f.WriteAt(buf, pageAOffset); err != nil {
		return fmt.Errorf("%w: write page A: %v", ErrIo, err)
	}
	if err := durabilityBarrier(f); err != nil {
		return fmt.Errorf("%w: sync page A: %v", ErrIo, err)
	}
	if _, err := f.WriteAt(buf, pageBOffset); err != nil {
		return fmt.Errorf("%w: write page B: %v", ErrIo, err)
	}
	return wrapIo(durabilityBarrier(f), "sync page B")
}

// writePage writes a single page in isolation, used only by Read's
// heal-on-recovery path where the other page is already known-good and
// does not need to be rewritten.
func (s *Store) writePage(offset int64, r record.BootRecord) error {
	f, err := s.fs.OpenFile(s.path, fileOpenFlags(), 0o644)
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrIo, err)
	}
	defer f.Close()

	buf := record.Encode(r)
	if _, err := f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: write at %d: %v", ErrIo, offset, err)
	}
	return wrapIo(durabilityBarrier(f), "sync healed page")
}

func wrapIo(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrIo, context, err)
}

// decodeValid decodes a page and reports whether it passes every §3.1
// validity invariant (trailer, version, tier, crc32).
func decodeValid(page []byte) (record.BootRecord, bool) {
	r, err := record.Decode(page)
	if err != nil {
		return record.BootRecord{}, false
	}
	if r.Trailer != record.Magic || r.Version != record.LayoutVersion || !r.Tier.Valid() {
		return record.BootRecord{}, false
	}
	if !record.CRCValid(r) {
		return record.BootRecord{}, false
	}
	return r, true
}
