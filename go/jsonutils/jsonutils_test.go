package jsonutils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/easyctf/openctf-judge/go/testutils/unittest"
	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	unittest.SmallTest(t)
	cases := []struct {
		in   string
		want int64
		err  string
	}{
		{in: "0", want: 0},
		{in: "\"0\"", want: 0},
		{in: "42", want: 42},
		{in: "\"42\"", want: 42},
		{in: "-7", want: -7},
		{in: "2147483648", want: 2147483648},
		{in: "9223372036854775807", want: 9223372036854775807},
		{in: "\"9223372036854775807\"", want: 9223372036854775807},
		{in: "9223372036854775808", err: "value out of range"},
		{in: "1.5", err: "invalid syntax"},
		{in: "junk", err: "invalid syntax"},
	}
	for _, tc := range cases {
		var got Number
		err := json.Unmarshal([]byte(tc.in), &got)
		if tc.err != "" {
			require.Error(t, err, "input %s", tc.in)
			require.Contains(t, err.Error(), tc.err)
		} else {
			require.NoError(t, err, "input %s", tc.in)
			require.Equal(t, tc.want, int64(got))
		}
	}
}

func TestFloat(t *testing.T) {
	unittest.SmallTest(t)
	cases := []struct {
		in   string
		want float64
		err  string
	}{
		{in: "0", want: 0},
		{in: "0.25", want: 0.25},
		{in: "\"0.25\"", want: 0.25},
		{in: "512", want: 512},
		{in: "\"1e3\"", want: 1000},
		{in: "junk", err: "invalid syntax"},
	}
	for _, tc := range cases {
		var got Float
		err := json.Unmarshal([]byte(tc.in), &got)
		if tc.err != "" {
			require.Error(t, err, "input %s", tc.in)
			require.Contains(t, err.Error(), tc.err)
		} else {
			require.NoError(t, err, "input %s", tc.in)
			require.Equal(t, tc.want, float64(got))
		}
	}
}

func TestTime_RoundTrip(t *testing.T) {
	unittest.SmallTest(t)
	cases := []struct {
		in   time.Time
		want string
	}{
		{in: time.Unix(0, 0), want: "0"},
		{in: time.Unix(1475508449, 0), want: "1475508449"},
		{in: time.Unix(1475508449, 500000000), want: "1475508449.5"},
		{in: time.Unix(1475508449, 250000000), want: "1475508449.25"},
	}
	for _, tc := range cases {
		inp := Time(tc.in)
		b, err := json.Marshal(&inp)
		require.NoError(t, err)
		require.Equal(t, tc.want, string(b))
		var got Time
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, tc.in.UTC(), time.Time(got).UTC())
	}
}

func TestTime_FromString(t *testing.T) {
	unittest.SmallTest(t)
	var got Time
	require.NoError(t, json.Unmarshal([]byte("\"1475508449\""), &got))
	require.Equal(t, time.Unix(1475508449, 0).UTC(), time.Time(got).UTC())
}
