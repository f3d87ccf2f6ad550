package instrument

import (
	"errors"
	"testing"
)

func TestParseKey_Valid(t *testing.T) {
	in, err := ParseKey("NSE_FNO:49081")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Segment != "NSE_FNO" {
		t.Errorf("expected segment NSE_FNO, got %s", in.Segment)
	}
	if in.SecurityID != "49081" {
		t.Errorf("expected security id 49081, got %s", in.SecurityID)
	}
	if in.Key() != "NSE_FNO:49081" {
		t.Errorf("round trip failed: %s", in.Key())
	}
}

func TestParseKey_Index(t *testing.T) {
	in, err := ParseKey("IDX_I:13")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Segment != SegmentIndex {
		t.Errorf("expected IDX_I, got %s", in.Segment)
	}
}

func TestParseKey_BadFormat(t *testing.T) {
	cases := []string{
		"",
		"NSE_FNO",
		"NSE_FNO:",
		":49081",
		"NSE_FNO:abc",
		"nse_fno:49081",
		"NSE_FNO:49081:LONG",
	}
	for _, c := range cases {
		if _, err := ParseKey(c); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseKey(%q): expected ErrInvalidKey, got %v", c, err)
		}
	}
}

func TestParseKey_UnknownSegment(t *testing.T) {
	_, err := ParseKey("MCX_FO:1234")
	if !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("expected ErrInvalidSegment, got %v", err)
	}
}
