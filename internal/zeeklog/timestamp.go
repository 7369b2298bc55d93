package zeeklog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimestamp validates a Zeek epoch timestamp such as "1700000000.123456".
// Only non-negative decimal notation is accepted: no sign, exponent, NUL byte
// or more than one decimal point.
func ParseTimestamp(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrTimestamp)
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return 0, fmt.Errorf("%w: contains a null byte", ErrTimestamp)
	}

	digits, dots := 0, 0
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return 0, fmt.Errorf("%w: '%s'", ErrTimestamp, raw)
		}
	}
	if digits == 0 || dots > 1 {
		return 0, fmt.Errorf("%w: '%s'", ErrTimestamp, raw)
	}

	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s': %v", ErrTimestamp, raw, err)
	}
	return ts, nil
}
