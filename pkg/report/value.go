package report

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// missingSentinel is the serialized form of a Value that carries no number,
// e.g. a change percentage with no previous result to compare against.
const missingSentinel = "-"

// Value is a float64 that may be missing. Missing comparison data is not an
// error in the changes table; it renders and serializes as "-".
type Value struct {
	set bool
	v   float64
}

// ValueOf returns a present Value.
func ValueOf(v float64) Value {
	return Value{set: true, v: v}
}

// Valid reports whether the value carries a number.
func (v Value) Valid() bool {
	return v.set
}

// Float64 returns the carried number. It is 0 for a missing value; callers
// must check Valid first.
func (v Value) Float64() float64 {
	return v.v
}

// String renders the value for display.
func (v Value) String() string {
	if !v.set {
		return missingSentinel
	}

	return strconv.FormatFloat(v.v, 'g', -1, 64)
}

// MarshalJSON serializes a present value as a JSON number and a missing
// value as the "-" sentinel string.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return json.Marshal(missingSentinel)
	}

	return json.Marshal(v.v)
}

// UnmarshalJSON accepts either a JSON number or the "-" sentinel string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != missingSentinel {
			return fmt.Errorf("unexpected value string %q", s)
		}

		*v = Value{}

		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing value: %w", err)
	}

	*v = ValueOf(f)

	return nil
}
