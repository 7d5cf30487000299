package trajectory

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Session is one recorded driving run. EndedAt is nil while it is active.
type Session struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (s Session) Active() bool {
	return s.EndedAt == nil
}

// Point is one command recorded inside a session. Points are never
// modified once appended.
type Point struct {
	SessionID string
	Timestamp time.Time
	Angle     *float64
	AC        *float64
	EN        *int
}

// PointInput is the body accepted by the point endpoint.
type PointInput struct {
	Angle *float64        `json:"angle"`
	AC    *float64        `json:"ac"`
	EN    *int            `json:"en"`
	TS    json.RawMessage `json:"ts"`
}

type sessionItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	TS   int64  `json:"ts"`
}

type pointItem struct {
	TS           float64  `json:"ts"`
	EpochSeconds int64    `json:"_ts"` // whole seconds, read by replay clients
	Angle        *float64 `json:"angle"`
	AC           *float64 `json:"ac"`
	EN           *int     `json:"en"`
}

func toSessionItem(s Session) sessionItem {
	return sessionItem{ID: s.ID, Name: s.Name, TS: s.StartedAt.Unix()}
}

func toPointItem(p Point) pointItem {
	ms := p.Timestamp.UnixMilli()
	return pointItem{
		TS:           float64(ms) / 1000,
		EpochSeconds: p.Timestamp.Unix(),
		Angle:        p.Angle,
		AC:           p.AC,
		EN:           p.EN,
	}
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Accepted client timestamps lie in [minTimestamp, maxTimestamp). Stores keep
// nanoseconds in an int64, which overflows after 2262.
var (
	minTimestamp = time.Unix(0, 0).UTC()
	maxTimestamp = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
)

func inRange(t time.Time) bool {
	return !t.Before(minTimestamp) && t.Before(maxTimestamp)
}

// ParseTimestamp normalizes a client supplied timestamp. A JSON number is
// Unix epoch seconds (fraction allowed); a JSON string is RFC 3339, and a
// string without zone is read as UTC. Anything else, including instants
// before 1970 or from 2200 on, reports ok=false.
func ParseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), inRange(t)
		}
		for _, layout := range zonelessLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, inRange(t)
			}
		}
		return time.Time{}, false
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, false
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 || secs >= float64(maxTimestamp.Unix()) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), true
}
