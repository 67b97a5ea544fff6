package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrInvalidPayload is returned by [Store.Track] when a payload cannot be
// turned into a connection event.
const ErrInvalidPayload errors.Error = "invalid payload"

// Default values of the payload fields.
const (
	DefaultUserID   = "anonymous"
	DefaultProtocol = "wireguard"
)

// payload is the set of recognized fields of a track request.
type payload struct {
	serverID   Label
	serverName Label
	country    Label
	userID     Label
	protocol   Label
	duration   int64
}

// decodePayload extracts the recognized fields from data, which must be a JSON
// object.  Unknown fields are ignored.
func decodePayload(data []byte) (p *payload, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Error("empty body")
	}

	var fields map[string]json.RawMessage
	err = json.Unmarshal(data, &fields)
	if err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	} else if fields == nil {
		return nil, errors.Error("not a json object")
	}

	p = &payload{}
	labels := []struct {
		dst  *Label
		name string
		def  Label
	}{
		{dst: &p.serverID, name: "server_id", def: NullLabel},
		{dst: &p.serverName, name: "server_name", def: NullLabel},
		{dst: &p.country, name: "country", def: NullLabel},
		{dst: &p.userID, name: "user_id", def: StringLabel(DefaultUserID)},
		{dst: &p.protocol, name: "protocol", def: StringLabel(DefaultProtocol)},
	}

	for _, l := range labels {
		raw, ok := fields[l.name]
		if !ok {
			*l.dst = l.def

			continue
		}

		err = l.dst.UnmarshalJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", l.name, err)
		}
	}

	p.duration, err = decodeDuration(fields["duration"])
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", "duration", err)
	}

	return p, nil
}

// decodeDuration returns the duration in milliseconds from raw.  A missing or
// null value means zero.
func decodeDuration(raw json.RawMessage) (ms int64, err error) {
	if raw == nil {
		return 0, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	err = dec.Decode(&v)
	if err != nil {
		return 0, err
	}

	switch v := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		ms, err = numberToMS(v)
		if err != nil {
			return 0, err
		} else if ms < 0 {
			return 0, fmt.Errorf("must not be negative, got %d", ms)
		}

		return ms, nil
	default:
		return 0, fmt.Errorf("want integer milliseconds, got %T", v)
	}
}

// numberToMS converts n to an integer.  Whole numbers in decimal or exponent
// form, such as 60000.0 or 1e3, are accepted.
func numberToMS(n json.Number) (ms int64, err error) {
	ms, err = n.Int64()
	if err == nil {
		return ms, nil
	}

	f, err := n.Float64()
	if err != nil || math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("want integer milliseconds, got %s", n)
	}

	return int64(f), nil
}
