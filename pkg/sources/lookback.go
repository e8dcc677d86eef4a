package sources

import (
	"fmt"
	"strconv"
	"time"
)

// Lookback is the traceroute history window in hours. The upstream dashboard
// only serves the enumerated windows; anything else is rejected at the
// boundary rather than clamped.
type Lookback int

const (
	LookbackDay    Lookback = 24
	Lookback3Days  Lookback = 72
	LookbackWeek   Lookback = 168
	Lookback2Weeks Lookback = 336
	LookbackMonth  Lookback = 720

	DefaultLookback = LookbackWeek
)

// Lookbacks lists the valid windows, shortest first.
func Lookbacks() []Lookback {
	return []Lookback{LookbackDay, Lookback3Days, LookbackWeek, Lookback2Weeks, LookbackMonth}
}

func (l Lookback) Valid() bool {
	switch l {
	case LookbackDay, Lookback3Days, LookbackWeek, Lookback2Weeks, LookbackMonth:
		return true
	}
	return false
}

func (l Lookback) Duration() time.Duration {
	return time.Duration(l) * time.Hour
}

func (l Lookback) Hours() int {
	return int(l)
}

func (l Lookback) String() string {
	return strconv.Itoa(int(l))
}

// UnmarshalText parses the hour count, so flag parsers and config decoders
// accept "168" and reject windows the dashboard does not serve.
func (l *Lookback) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("lookback hours: %w", err)
	}
	v := Lookback(n)
	if !v.Valid() {
		return fmt.Errorf("lookback %d hours: must be one of 24, 72, 168, 336, 720", n)
	}
	*l = v
	return nil
}
