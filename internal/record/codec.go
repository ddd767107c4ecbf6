package record

import (
	"encoding/binary"
	"fmt"

	"github.com/anonymous-shadowhawk/pacboot/internal/checksum"
)

// PageSize is the exact on-disk size of one serialized BootRecord: the sum
// of every field's width with no padding (§4.2, §6.1).
//
//	version(4) + tier(1) + tries_t2(1) + tries_t3(1) + rollback_idx(1) +
//	flags(4) + boot_count(8) + timestamp(8) + crc32(4) + trailer(4) = 36
const PageSize = 4 + 1 + 1 + 1 + 1 + 4 + 8 + 8 + 4 + 4

// crcOffset is the byte offset of the crc32 field: everything before it is
// covered by the checksum (§3.1: "CRC-32 of all preceding fields").
const crcOffset = 4 + 1 + 1 + 1 + 1 + 4 + 8 + 8

// ErrBadLayout is returned by Decode when the input is not exactly
// PageSize bytes.
var ErrBadLayout = fmt.Errorf("record: buffer is not %d bytes", PageSize)

// Encode serializes r into a freshly allocated PageSize-byte little-endian
// buffer, in the field order of §3.1. It does not recompute CRC32; callers
// that want a self-consistent page should call r.CRC32 = checksum.Sum(...)
// (or use journal.Store.Write, which does this) before encoding.
func Encode(r BootRecord) []byte {
	buf := make([]byte, PageSize)
	putRecord(buf, r)
	return buf
}

// EncodeChecksummed serializes r after recomputing its CRC32 field over the
// preceding fields, matching exactly what Decode will verify.
func EncodeChecksummed(r BootRecord) []byte {
	r.CRC32 = ComputeCRC(r)
	return Encode(r)
}

// ComputeCRC computes the CRC-32 that a record's crc32 field should hold,
// over the serialized bytes of every field before it.
func ComputeCRC(r BootRecord) uint32 {
	buf := make([]byte, crcOffset)
	putRecord(buf, r) // only the fields up to crcOffset are written
	return checksum.Sum(buf[:crcOffset])
}

func putRecord(buf []byte, r BootRecord) {
	off := 0
	put := func(n int, write func([]byte)) {
		if off+n > len(buf) {
			return
		}
		write(buf[off : off+n])
		off += n
	}
	put(4, func(b []byte) { binary.LittleEndian.PutUint32(b, r.Version) })
	put(1, func(b []byte) { b[0] = byte(r.Tier) })
	put(1, func(b []byte) { b[0] = r.TriesT2 })
	put(1, func(b []byte) { b[0] = r.TriesT3 })
	put(1, func(b []byte) { b[0] = r.RollbackIdx })
	put(4, func(b []byte) { binary.LittleEndian.PutUint32(b, uint32(r.Flags)) })
	put(8, func(b []byte) { binary.LittleEndian.PutUint64(b, r.BootCount) })
	put(8, func(b []byte) { binary.LittleEndian.PutUint64(b, r.Timestamp) })
	if len(buf) <= crcOffset {
		return // ComputeCRC only wants the prefix
	}
	put(4, func(b []byte) { binary.LittleEndian.PutUint32(b, r.CRC32) })
	put(4, func(b []byte) { binary.LittleEndian.PutUint32(b, r.Trailer) })
}

// Decode parses exactly PageSize bytes into a BootRecord. It does not
// validate the record (see BootRecord.ValidateShape and the journal store's
// CRC check) — it only unpacks the wire layout.
func Decode(buf []byte) (BootRecord, error) {
	if len(buf) != PageSize {
		return BootRecord{}, ErrBadLayout
	}
	var r BootRecord
	off := 0
	get := func(n int) []byte {
		b := buf[off : off+n]
		off += n
		return b
	}
	r.Version = binary.LittleEndian.Uint32(get(4))
	r.Tier = Tier(get(1)[0])
	r.TriesT2 = get(1)[0]
	r.TriesT3 = get(1)[0]
	r.RollbackIdx = get(1)[0]
	r.Flags = Flags(binary.LittleEndian.Uint32(get(4)))
	r.BootCount = binary.LittleEndian.Uint64(get(8))
	r.Timestamp = binary.LittleEndian.Uint64(get(8))
	r.CRC32 = binary.LittleEndian.Uint32(get(4))
	r.Trailer = binary.LittleEndian.Uint32(get(4))
	return r, nil
}

// CRCValid reports whether r.CRC32 matches the checksum of its preceding
// fields.
func CRCValid(r BootRecord) bool {
	return r.CRC32 == ComputeCRC(r)
}
