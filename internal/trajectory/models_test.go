package trajectory

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{`1731155696`, time.Unix(1731155696, 0).UTC(), true},
		{`1731155696.25`, time.Unix(1731155696, 250_000_000).UTC(), true},
		{`"2025-11-09T12:34:56Z"`, time.Date(2025, 11, 9, 12, 34, 56, 0, time.UTC), true},
		{`"2025-11-09T12:34:56.5+02:00"`, time.Date(2025, 11, 9, 10, 34, 56, 500_000_000, time.UTC), true},
		{`"2025-11-09T12:34:56"`, time.Date(2025, 11, 9, 12, 34, 56, 0, time.UTC), true},
		{`"2025-11-09T12:34:56.123"`, time.Date(2025, 11, 9, 12, 34, 56, 123_000_000, time.UTC), true},
		{`"yesterday"`, time.Time{}, false},
		{`-5`, time.Time{}, false},
		{`null`, time.Time{}, false},
		{``, time.Time{}, false},
		{`{"a":1}`, time.Time{}, false},
		{`"2300-01-01T00:00:00Z"`, time.Time{}, false},
		{`"2199-12-31T23:59:59"`, time.Date(2199, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{`"1969-12-31T23:59:59Z"`, time.Time{}, false},
		{`1e11`, time.Time{}, false},
		{`1e300`, time.Time{}, false},
	}

	for _, tc := range cases {
		got, ok := ParseTimestamp(json.RawMessage(tc.raw))
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.raw, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.raw, got, tc.want)
		}
	}
}

func TestPointItemMilliseconds(t *testing.T) {
	ts := time.Date(2025, 11, 9, 12, 34, 56, 789_000_000, time.UTC)
	item := toPointItem(Point{Timestamp: ts})
	want := float64(ts.UnixMilli()) / 1000
	if item.TS != want {
		t.Fatalf("got %v want %v", item.TS, want)
	}
	if item.EpochSeconds != ts.Unix() {
		t.Fatalf("got _ts %v want %v", item.EpochSeconds, ts.Unix())
	}
}
