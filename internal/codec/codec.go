// Package codec maps wire-level integers to backend call arguments and back.
// It is pure marshaling: no backend state, no side effects.
package codec

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange reports a map_code outside [0, ScheduleMapRange).
var ErrOutOfRange = errors.New("map_code out of range")

// ErrBoundsTooLarge reports dimensions whose product does not fit an int32
// map_code.
var ErrBoundsTooLarge = errors.New("schedule map range exceeds int32")

// Bounds are the search-space dimensions frozen at session init. A zero
// dimension produces an empty space; every decode then fails.
type Bounds struct {
	MaxStage     int32
	MaxDirective int32
	MaxParam     int32
}

// ScheduleMapRange is the number of legal (stage, directive, param)
// combinations, i.e. the exclusive upper bound on map_code.
func (b Bounds) ScheduleMapRange() int32 {
	return b.MaxStage * b.MaxDirective * b.MaxParam
}

// Validate rejects bounds whose map_code space overflows int32. map_code is
// int32 on the wire, so any dimension product past MaxInt32 would wrap
// negative and make every decode fail.
func (b Bounds) Validate() error {
	r := int64(b.MaxStage) * int64(b.MaxDirective) * int64(b.MaxParam)
	if r > math.MaxInt32 {
		return fmt.Errorf("%w: %d*%d*%d = %d", ErrBoundsTooLarge,
			b.MaxStage, b.MaxDirective, b.MaxParam, r)
	}
	return nil
}

// Decision is one decoded scheduling decision.
type Decision struct {
	Stage     int32
	Directive int32
	Param     int32
}

// Decode converts a flat map_code into its (stage, directive, param) triple.
// The mapping is a fixed bijection over the bounds: param varies fastest,
// stage slowest.
func (b Bounds) Decode(mapCode int32) (Decision, error) {
	r := b.ScheduleMapRange()
	if mapCode < 0 || mapCode >= r {
		return Decision{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, mapCode, r)
	}
	return Decision{
		Stage:     mapCode / (b.MaxDirective * b.MaxParam),
		Directive: (mapCode / b.MaxParam) % b.MaxDirective,
		Param:     mapCode % b.MaxParam,
	}, nil
}

// Encode is the inverse of Decode.
func (b Bounds) Encode(d Decision) (int32, error) {
	if d.Stage < 0 || d.Stage >= b.MaxStage ||
		d.Directive < 0 || d.Directive >= b.MaxDirective ||
		d.Param < 0 || d.Param >= b.MaxParam {
		return 0, fmt.Errorf("%w: decision (%d,%d,%d) outside bounds (%d,%d,%d)",
			ErrOutOfRange, d.Stage, d.Directive, d.Param, b.MaxStage, b.MaxDirective, b.MaxParam)
	}
	return (d.Stage*b.MaxDirective+d.Directive)*b.MaxParam + d.Param, nil
}
