package codec

import (
	"errors"
	"testing"
)

func TestDecodeRoundTripsEveryCode(t *testing.T) {
	b := Bounds{MaxStage: 4, MaxDirective: 5, MaxParam: 7}
	seen := make(map[Decision]int32)
	for code := int32(0); code < b.ScheduleMapRange(); code++ {
		d, err := b.Decode(code)
		if err != nil {
			t.Fatalf("decode %d: %v", code, err)
		}
		if prev, dup := seen[d]; dup {
			t.Fatalf("codes %d and %d decode to same decision %+v", prev, code, d)
		}
		seen[d] = code
		back, err := b.Encode(d)
		if err != nil {
			t.Fatalf("encode %+v: %v", d, err)
		}
		if back != code {
			t.Fatalf("round trip %d -> %+v -> %d", code, d, back)
		}
	}
	if len(seen) != int(b.ScheduleMapRange()) {
		t.Fatalf("expected %d distinct decisions, got %d", b.ScheduleMapRange(), len(seen))
	}
}

func TestDecodeBoundary(t *testing.T) {
	b := Bounds{MaxStage: 3, MaxDirective: 3, MaxParam: 3}
	r := b.ScheduleMapRange()
	if _, err := b.Decode(r - 1); err != nil {
		t.Fatalf("decode %d should be valid: %v", r-1, err)
	}
	for _, code := range []int32{-1, r, r + 100} {
		_, err := b.Decode(code)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("decode %d: expected ErrOutOfRange, got %v", code, err)
		}
	}
}

func TestEncodeRejectsOutsideBounds(t *testing.T) {
	b := Bounds{MaxStage: 2, MaxDirective: 2, MaxParam: 2}
	bad := []Decision{
		{Stage: 2, Directive: 0, Param: 0},
		{Stage: 0, Directive: -1, Param: 0},
		{Stage: 0, Directive: 0, Param: 2},
	}
	for _, d := range bad {
		if _, err := b.Encode(d); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("encode %+v: expected ErrOutOfRange, got %v", d, err)
		}
	}
}

func TestValidateRejectsInt32Overflow(t *testing.T) {
	ok := Bounds{MaxStage: 4, MaxDirective: 8, MaxParam: 8}
	if err := ok.Validate(); err != nil {
		t.Fatalf("validate %+v: %v", ok, err)
	}
	// 2e9 * 8 * 8 wraps an int32 product negative.
	big := Bounds{MaxStage: 2000000000, MaxDirective: 8, MaxParam: 8}
	if big.ScheduleMapRange() > 0 {
		t.Fatalf("expected wrapped range, got %d", big.ScheduleMapRange())
	}
	if err := big.Validate(); !errors.Is(err, ErrBoundsTooLarge) {
		t.Fatalf("expected ErrBoundsTooLarge, got %v", err)
	}
}

func TestEmptySpaceRejectsEverything(t *testing.T) {
	b := Bounds{}
	if r := b.ScheduleMapRange(); r != 0 {
		t.Fatalf("expected empty range, got %d", r)
	}
	if _, err := b.Decode(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
