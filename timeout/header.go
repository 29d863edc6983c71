package timeout

import (
	"fmt"
	"strconv"
	"time"
)

const maxTimeoutDigits = 8

var units = []struct {
	suffix byte
	d      time.Duration
}{
	{'n', time.Nanosecond},
	{'u', time.Microsecond},
	{'m', time.Millisecond},
	{'S', time.Second},
	{'M', time.Minute},
	{'H', time.Hour},
}

// EncodeHeader renders d as a grpc-timeout value: at most eight digits
// followed by a unit, rounding up to the smallest unit that fits.
func EncodeHeader(d time.Duration) string {
	if d <= 0 {
		return "0n"
	}
	const max = 1e8 - 1
	for _, u := range units {
		n := (d + u.d - 1) / u.d
		if n <= max {
			return strconv.FormatInt(int64(n), 10) + string(u.suffix)
		}
	}
	return strconv.FormatInt(max, 10) + "H"
}

// ParseHeader parses a grpc-timeout value.
func ParseHeader(s string) (time.Duration, error) {
	if len(s) < 2 || len(s) > maxTimeoutDigits+1 {
		return 0, fmt.Errorf("timeout: invalid grpc-timeout %q", s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("timeout: invalid grpc-timeout %q", s)
	}
	for _, u := range units {
		if u.suffix == s[len(s)-1] {
			return time.Duration(n) * u.d, nil
		}
	}
	return 0, fmt.Errorf("timeout: unknown grpc-timeout unit in %q", s)
}
