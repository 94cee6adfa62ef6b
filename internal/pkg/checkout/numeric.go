package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Numeric accepts a JSON number or a numeric string. The zero value means
// the field was absent.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
		return nil
	}
	*n = Numeric(b)
	return nil
}

// Present reports whether a value was supplied.
func (n Numeric) Present() bool {
	return strings.TrimSpace(string(n)) != ""
}

// Float parses a positive finite number below MaxAmount.
func (n Numeric) Float() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", string(n))
	}
	if v <= 0 || v != v {
		return 0, fmt.Errorf("%q must be a positive number", string(n))
	}
	if v >= MaxAmount {
		return 0, fmt.Errorf("%q is out of range", string(n))
	}
	return v, nil
}

// Int parses a positive integer.
func (n Numeric) Int() (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(string(n)))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", string(n))
	}
	if v <= 0 {
		return 0, fmt.Errorf("%q must be a positive integer", string(n))
	}
	return v, nil
}
