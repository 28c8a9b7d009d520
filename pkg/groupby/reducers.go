package groupby

import (
	"fmt"

	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// BadReducerInputError reports that a reducer's invariant was violated,
// e.g. sum_ints applied where the configured field is missing or not an
// Int.
type BadReducerInputError struct {
	Reason string
}

func (e *BadReducerInputError) Error() string {
	return fmt.Sprintf("bad reducer input: %s", e.Reason)
}

// Counter is the pre-supplied counting reducer: Empty -> Int(1),
// Int(n) -> Int(n+1). Any other accumulator type is returned unchanged
// (a defensive no-op) — counter is deliberately robust to an
// unexpected accumulator, unlike SumInts, because it never reads a
// field from the input record and so has nothing to fail on.
func Counter(acc value.Value, _ record.Record) (value.Value, error) {
	switch acc.Arm() {
	case value.ArmEmpty:
		return value.Int(1), nil
	case value.ArmInt:
		n, _ := acc.AsInt()
		return value.Int(n + 1), nil
	default:
		return acc, nil
	}
}

// SumInts returns a reducer that sums the Int value stored under key
// across every record in the group. Empty -> Int(0); on an Int
// accumulator, r[key] must also be an Int or the reducer fails with
// BadReducerInputError — unlike Counter, SumInts needs the field to
// exist and be well-typed, so it cannot silently pass through bad
// input.
func SumInts(key string) Reducer {
	return func(acc value.Value, r record.Record) (value.Value, error) {
		switch acc.Arm() {
		case value.ArmEmpty:
			acc = value.Int(0)
		case value.ArmInt:
			// fall through to addition below
		default:
			return value.Value{}, &BadReducerInputError{Reason: fmt.Sprintf("accumulator is %s, want Empty or Int", acc.Arm())}
		}

		n, _ := acc.AsInt()
		fv, ok := r.Get(key)
		if !ok {
			return value.Value{}, &BadReducerInputError{Reason: fmt.Sprintf("field %q missing", key)}
		}
		m, err := fv.AsInt()
		if err != nil {
			return value.Value{}, &BadReducerInputError{Reason: fmt.Sprintf("field %q is %s, want Int", key, fv.Arm())}
		}
		return value.Int(n + m), nil
	}
}
