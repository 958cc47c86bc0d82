package jsonutils

import (
	"bytes"
	"math"
	"strconv"
	"time"
)

// Number is an int64 which may be unmarshaled from a JSON string.
type Number int64

// UnmarshalJSON parses data as an integer, whether data is a number or string.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	num, err := strconv.ParseInt(string(data), 10, 64)
	if err == nil {
		*n = Number(num)
	}
	return err
}

// Float is a float64 which may be unmarshaled from a JSON string.
type Float float64

// UnmarshalJSON parses data as a float, whether data is a number or string.
func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	num, err := strconv.ParseFloat(string(data), 64)
	if err == nil {
		*f = Float(num)
	}
	return err
}

// Time is a convenience type used for marshaling a time.Time to and from a
// JSON number of seconds since the Unix epoch. Fractional seconds are kept to
// microsecond precision, matching the precision of the datastore.
type Time time.Time

// MarshalJSON encodes a time.Time as a JSON number of POSIX seconds.
func (t Time) MarshalJSON() ([]byte, error) {
	sec := float64(time.Time(t).UnixMicro()) / 1e6
	return []byte(strconv.FormatFloat(sec, 'f', -1, 64)), nil
}

// UnmarshalJSON parses a time.Time from a JSON number of POSIX seconds.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	sec, err := strconv.ParseFloat(string(data), 64)
	if err == nil {
		*t = Time(time.UnixMicro(int64(math.Round(sec * 1e6))).UTC())
	}
	return err
}
