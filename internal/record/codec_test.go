package record

import "testing"

func sample() BootRecord {
	r := NewDefault()
	r.Tier = Tier3
	r.TriesT2 = 2
	r.TriesT3 = 1
	r.RollbackIdx = 7
	r.Flags = FlagDirty.Set(FlagBrownout)
	r.BootCount = 123456789
	r.Timestamp = 1700000000
	r.CRC32 = ComputeCRC(r)
	return r
}

func TestRoundTrip(t *testing.T) {
	want := sample()
	buf := Encode(want)
	if len(buf) != PageSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), PageSize)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestDecodeBadLayout(t *testing.T) {
	if _, err := Decode(make([]byte, PageSize-1)); err != ErrBadLayout {
		t.Fatalf("Decode short buffer: got %v, want ErrBadLayout", err)
	}
	if _, err := Decode(make([]byte, PageSize+1)); err != ErrBadLayout {
		t.Fatalf("Decode long buffer: got %v, want ErrBadLayout", err)
	}
}

func TestCRCValid(t *testing.T) {
	r := sample()
	if !CRCValid(r) {
		t.Fatal("sample record should have a valid CRC")
	}
	r.Tier = Tier2 // mutate a covered field without refreshing CRC32
	if CRCValid(r) {
		t.Fatal("mutated record should invalidate CRC")
	}
}

func TestEncodeChecksummedProducesValidCRC(t *testing.T) {
	r := sample()
	r.CRC32 = 0 // wrong on purpose
	buf := EncodeChecksummed(r)
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !CRCValid(got) {
		t.Fatal("EncodeChecksummed should leave a self-consistent CRC")
	}
}

func TestPageSizeHasNoPadding(t *testing.T) {
	// 4+1+1+1+1+4+8+8+4+4
	const want = 36
	if PageSize != want {
		t.Fatalf("PageSize = %d, want %d (packed, no padding)", PageSize, want)
	}
}
