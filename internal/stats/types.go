package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the layout of every timestamp the store produces.  It has a
// fixed width in UTC, so comparing two formatted values as strings gives the
// same order as comparing the times.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime formats t in UTC using [TimeLayout].
func FormatTime(t time.Time) (s string) {
	return t.UTC().Format(TimeLayout)
}

type labelKind uint8

const (
	labelNull labelKind = iota
	labelString
	labelNumber
	labelBool
)

// Label is an optional scalar used as an aggregation key: null, a string, a
// number or a boolean.  Numbers and booleans keep their JSON literals, so the
// server 1 and the server "1" are counted separately.  The zero Label is
// null.
type Label struct {
	text string
	kind labelKind
}

// NullLabel is the label of a missing or null field.
var NullLabel = Label{}

// StringLabel returns a string label.
func StringLabel(s string) (l Label) {
	return Label{text: s, kind: labelString}
}

// IsNull returns true if l is null.
func (l Label) IsNull() (ok bool) {
	return l.kind == labelNull
}

// String returns the display text of l, "null" for a null label.
func (l Label) String() (s string) {
	if l.kind == labelNull {
		return "null"
	}

	return l.text
}

// type check
var _ json.Marshaler = Label{}

// MarshalJSON implements the [json.Marshaler] interface for Label.
func (l Label) MarshalJSON() (b []byte, err error) {
	switch l.kind {
	case labelString:
		return json.Marshal(l.text)
	case labelNumber, labelBool:
		return []byte(l.text), nil
	default:
		return []byte("null"), nil
	}
}

// type check
var _ json.Unmarshaler = (*Label)(nil)

// UnmarshalJSON implements the [json.Unmarshaler] interface for *Label.
func (l *Label) UnmarshalJSON(b []byte) (err error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	err = dec.Decode(&v)
	if err != nil {
		return err
	}

	switch v := v.(type) {
	case nil:
		*l = NullLabel
	case string:
		*l = StringLabel(v)
	case json.Number:
		*l = Label{text: v.String(), kind: labelNumber}
	case bool:
		*l = Label{text: strconv.FormatBool(v), kind: labelBool}
	default:
		return fmt.Errorf("want string, number, boolean or null, got %T", v)
	}

	return nil
}

// ConnectionEvent is one tracked VPN connection.
type ConnectionEvent struct {
	ID         uuid.UUID `json:"id"`
	ServerID   Label     `json:"server_id"`
	ServerName Label     `json:"server_name"`
	Country    Label     `json:"country"`
	UserID     Label     `json:"user_id"`
	Protocol   Label     `json:"protocol"`
	Timestamp  string    `json:"timestamp"`
	Duration   int64     `json:"duration"`

	// Time is the ingestion time, Timestamp is its formatted form.
	Time time.Time `json:"-"`
}

// KeyCount is a counter entry.  It is encoded as a two-element JSON array.
type KeyCount struct {
	Key   Label
	Count uint64
}

// type check
var _ json.Marshaler = KeyCount{}

// MarshalJSON implements the [json.Marshaler] interface for KeyCount.
func (kc KeyCount) MarshalJSON() (b []byte, err error) {
	key, err := kc.Key.MarshalJSON()
	if err != nil {
		return nil, err
	}

	b = append(b, '[')
	b = append(b, key...)
	b = append(b, ',')
	b = strconv.AppendUint(b, kc.Count, 10)

	return append(b, ']'), nil
}

// RankedCounts is a list of counter entries encoded as a JSON object that
// keeps the list order.  Keys are the display text of the labels.
type RankedCounts []KeyCount

// type check
var _ json.Marshaler = RankedCounts(nil)

// MarshalJSON implements the [json.Marshaler] interface for RankedCounts.
func (rc RankedCounts) MarshalJSON() (b []byte, err error) {
	b = append(b, '{')
	for i, kc := range rc {
		if i > 0 {
			b = append(b, ',')
		}

		var key []byte
		key, err = json.Marshal(kc.Key.String())
		if err != nil {
			return nil, err
		}

		b = append(b, key...)
		b = append(b, ':')
		b = strconv.AppendUint(b, kc.Count, 10)
	}

	return append(b, '}'), nil
}

// Snapshot is the statistics view of the store.
type Snapshot struct {
	PopularServers     []KeyCount `json:"popular_servers"`
	PopularCountries   []KeyCount `json:"popular_countries"`
	LastUpdated        string     `json:"last_updated"`
	TotalDurationHours float64    `json:"total_duration_hours"`
	TotalConnections   int        `json:"total_connections"`
	TotalUsers         int        `json:"total_users"`
}

// Dashboard is the dashboard view of the store.
type Dashboard struct {
	TopCountries          RankedCounts      `json:"top_countries"`
	RecentConnections     []ConnectionEvent `json:"recent_connections"`
	AverageSessionMinutes float64           `json:"average_session_minutes"`
	TotalConnections      int               `json:"total_connections"`
	UniqueUsers           int               `json:"unique_users"`
}

// Health is the liveness view of the store.
type Health struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	ConnectionsCount int    `json:"connections_count"`
}
