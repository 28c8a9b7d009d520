package record

import "fmt"

// MissingFieldError reports that a lookup required a key absent from
// the record.
type MissingFieldError struct {
	Key string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Key)
}
