package timespan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tick resolution is 100ns, so every value up to several thousand years
// fits an int64 and no arithmetic goes through floating point.
const (
	TicksPerMillisecond int64 = 10_000
	TicksPerSecond            = 1000 * TicksPerMillisecond
	TicksPerMinute            = 60 * TicksPerSecond

	fractionDigits = 7
)

// ErrFormat is returned (wrapped in a *FormatError) for any string that is
// not of the form minutes:seconds[.fraction].
var ErrFormat = errors.New("timespan: invalid format")

// FormatError reports the input that failed to parse.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("timespan: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// TimeSpan is a duration counted in 100ns ticks.
type TimeSpan int64

// Zero is the empty span.
const Zero TimeSpan = 0

func FromTicks(ticks int64) TimeSpan { return TimeSpan(ticks) }

func FromMilliseconds(ms int64) TimeSpan { return TimeSpan(ms * TicksPerMillisecond) }

func FromSeconds(s int64) TimeSpan { return TimeSpan(s * TicksPerSecond) }

func FromMinutes(m int64) TimeSpan { return TimeSpan(m * TicksPerMinute) }

// FromDuration converts a time.Duration, truncating below tick resolution.
func FromDuration(d time.Duration) TimeSpan { return TimeSpan(int64(d) / 100) }

// FromSamples converts a sample count at the given rate to a span without
// intermediate overflow for long buffers.
func FromSamples(n int64, sampleRate int) TimeSpan {
	if sampleRate <= 0 {
		return 0
	}
	rate := int64(sampleRate)
	return TimeSpan((n/rate)*TicksPerSecond + (n%rate)*TicksPerSecond/rate)
}

// Samples is the inverse of FromSamples, rounded to the nearest sample so
// that Samples(FromSamples(n)) == n.
func (t TimeSpan) Samples(sampleRate int) int64 {
	rate := int64(sampleRate)
	ticks := int64(t)
	return (ticks/TicksPerSecond)*rate + ((ticks%TicksPerSecond)*rate+TicksPerSecond/2)/TicksPerSecond
}

func (t TimeSpan) Ticks() int64 { return int64(t) }

func (t TimeSpan) Duration() time.Duration { return time.Duration(int64(t) * 100) }

func (t TimeSpan) TotalMinutes() float64 { return float64(t) / float64(TicksPerMinute) }

func (t TimeSpan) TotalSeconds() float64 { return float64(t) / float64(TicksPerSecond) }

func (t TimeSpan) TotalMilliseconds() float64 { return float64(t) / float64(TicksPerMillisecond) }

// Minutes is the whole-minute component.
func (t TimeSpan) Minutes() int64 { return int64(t) / TicksPerMinute }

// Seconds is the whole-second component, 0-59 for non-negative spans.
func (t TimeSpan) Seconds() int64 { return (int64(t) % TicksPerMinute) / TicksPerSecond }

// Milliseconds is the millisecond part of the sub-second component.
func (t TimeSpan) Milliseconds() int64 { return (int64(t) % TicksPerSecond) / TicksPerMillisecond }

// fraction is the full sub-second component in ticks.
func (t TimeSpan) fraction() int64 { return int64(t) % TicksPerSecond }

func compose(minutes, seconds, fraction int64) TimeSpan {
	return TimeSpan(minutes*TicksPerMinute + seconds*TicksPerSecond + fraction)
}

// WithMinutes replaces the minute component and keeps the others.
func (t TimeSpan) WithMinutes(m int64) TimeSpan {
	return compose(m, t.Seconds(), t.fraction())
}

// WithSeconds replaces the second component. Values outside 0-59 carry
// into minutes.
func (t TimeSpan) WithSeconds(s int64) TimeSpan {
	return compose(t.Minutes(), s, t.fraction())
}

// WithMilliseconds replaces the whole sub-second component with ms
// milliseconds. Values of 1000 or more carry into seconds.
func (t TimeSpan) WithMilliseconds(ms int64) TimeSpan {
	return compose(t.Minutes(), t.Seconds(), ms*TicksPerMillisecond)
}

func (t TimeSpan) Add(u TimeSpan) TimeSpan { return t + u }

func (t TimeSpan) Sub(u TimeSpan) TimeSpan { return t - u }

// Clamp limits t to [lo, hi].
func (t TimeSpan) Clamp(lo, hi TimeSpan) TimeSpan {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

func Max(a, b TimeSpan) TimeSpan {
	if a > b {
		return a
	}
	return b
}

func Min(a, b TimeSpan) TimeSpan {
	if a < b {
		return a
	}
	return b
}

// String renders MM:SS[.fraction], trimming trailing zero fraction digits.
func (t TimeSpan) String() string {
	ticks := int64(t)
	sign := ""
	if ticks < 0 {
		sign = "-"
		ticks = -ticks
	}
	u := TimeSpan(ticks)
	s := fmt.Sprintf("%s%02d:%02d", sign, u.Minutes(), u.Seconds())
	if frac := u.fraction(); frac != 0 {
		digits := strings.TrimRight(fmt.Sprintf("%0*d", fractionDigits, frac), "0")
		s += "." + digits
	}
	return s
}

// Parse accepts exactly minutes:seconds[.fraction] with an optional
// leading minus sign.
func Parse(s string) (TimeSpan, error) {
	in := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, &FormatError{Input: in, Reason: "expected exactly one ':'"}
	}
	minutes, err := parseDigits(parts[0])
	if err != nil {
		return 0, &FormatError{Input: in, Reason: "minutes: " + err.Error()}
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[1], ".")
	seconds, err := parseDigits(secPart)
	if err != nil {
		return 0, &FormatError{Input: in, Reason: "seconds: " + err.Error()}
	}

	var frac int64
	if hasFrac {
		if len(fracPart) > fractionDigits {
			return 0, &FormatError{Input: in, Reason: "fraction finer than tick resolution"}
		}
		if frac, err = parseDigits(fracPart); err != nil {
			return 0, &FormatError{Input: in, Reason: "fraction: " + err.Error()}
		}
		for i := len(fracPart); i < fractionDigits; i++ {
			frac *= 10
		}
	}

	if minutes > math.MaxInt64/TicksPerMinute-1 {
		return 0, &FormatError{Input: in, Reason: "minutes out of range"}
	}
	span := compose(minutes, seconds, frac)
	if neg {
		span = -span
	}
	return span, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) TimeSpan {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("unexpected %q", r)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// MarshalJSON writes the canonical string form.
func (t TimeSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the canonical string form, or a bare number of
// seconds as written by older project files.
func (t *TimeSpan) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*t = v
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return &FormatError{Input: string(b), Reason: "want string or number"}
	}
	*t = TimeSpan(math.Round(secs * float64(TicksPerSecond)))
	return nil
}

func (t TimeSpan) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *TimeSpan) UnmarshalYAML(value *yaml.Node) error {
	if tag := value.ShortTag(); tag == "!!int" || tag == "!!float" {
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*t = TimeSpan(math.Round(secs * float64(TicksPerSecond)))
		return nil
	}
	v, err := Parse(value.Value)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
