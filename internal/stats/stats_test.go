package stats_test

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vpn-analytics/internal/stats"
)

// testStart is the first time returned by test clocks.
var testStart = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

// newTickingClock returns a clock that advances by one second on every call.
// It must not be used concurrently.
func newTickingClock() (c *faketime.Clock) {
	now := testStart

	return &faketime.Clock{
		OnNow: func() (t time.Time) {
			t = now
			now = now.Add(time.Second)

			return t
		},
	}
}

// newFixedClock returns a clock that always returns testStart.
func newFixedClock() (c *faketime.Clock) {
	return &faketime.Clock{
		OnNow: func() (t time.Time) { return testStart },
	}
}

// mustTrack is a test helper that tracks a payload and requires success.
func mustTrack(tb testing.TB, s *stats.Store, payload string) (ev *stats.ConnectionEvent) {
	tb.Helper()

	ev, err := s.Track([]byte(payload))
	require.NoError(tb, err)

	return ev
}

// toJSON is a test helper that marshals v.
func toJSON(tb testing.TB, v any) (s string) {
	tb.Helper()

	b, err := json.Marshal(v)
	require.NoError(tb, err)

	return string(b)
}

func TestStore_Track(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		payload  string
		wantJSON string
	}{{
		name:    "full",
		payload: `{"server_id":"sg1","server_name":"Singapore 1","country":"SG","duration":60000,"user_id":"u1","protocol":"openvpn"}`,
		wantJSON: `{"server_id":"sg1","server_name":"Singapore 1","country":"SG",` +
			`"user_id":"u1","protocol":"openvpn","timestamp":"2026-10-15T12:00:00.000000Z","duration":60000}`,
	}, {
		name:    "defaults",
		payload: `{}`,
		wantJSON: `{"server_id":null,"server_name":null,"country":null,` +
			`"user_id":"anonymous","protocol":"wireguard","timestamp":"2026-10-15T12:00:00.000000Z","duration":0}`,
	}, {
		name:    "explicit_nulls",
		payload: `{"user_id":null,"protocol":null,"duration":null}`,
		wantJSON: `{"server_id":null,"server_name":null,"country":null,` +
			`"user_id":null,"protocol":null,"timestamp":"2026-10-15T12:00:00.000000Z","duration":0}`,
	}, {
		name:    "exponent_duration",
		payload: `{"duration":1e3}`,
		wantJSON: `{"server_id":null,"server_name":null,"country":null,` +
			`"user_id":"anonymous","protocol":"wireguard","timestamp":"2026-10-15T12:00:00.000000Z","duration":1000}`,
	}, {
		name:    "decimal_duration",
		payload: `{"duration":60000.0}`,
		wantJSON: `{"server_id":null,"server_name":null,"country":null,` +
			`"user_id":"anonymous","protocol":"wireguard","timestamp":"2026-10-15T12:00:00.000000Z","duration":60000}`,
	}, {
		name:    "bool_server_id",
		payload: `{"server_id":true}`,
		wantJSON: `{"server_id":true,"server_name":null,"country":null,` +
			`"user_id":"anonymous","protocol":"wireguard","timestamp":"2026-10-15T12:00:00.000000Z","duration":0}`,
	}, {
		name:    "numeric_server_id",
		payload: `{"server_id":42,"extra":{"ignored":true}}`,
		wantJSON: `{"server_id":42,"server_name":null,"country":null,` +
			`"user_id":"anonymous","protocol":"wireguard","timestamp":"2026-10-15T12:00:00.000000Z","duration":0}`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
			ev := mustTrack(t, s, tc.payload)

			assert.NotZero(t, ev.ID)
			assert.Equal(t, testStart, ev.Time)

			// Drop the random ID before comparing.
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(toJSON(t, ev)), &got))
			delete(got, "id")

			var want map[string]any
			require.NoError(t, json.Unmarshal([]byte(tc.wantJSON), &want))

			assert.Equal(t, want, got)
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestStore_Track_invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		payload    string
		wantErrMsg string
	}{{
		name:       "empty",
		payload:    "  ",
		wantErrMsg: "invalid payload: empty body",
	}, {
		name:       "null",
		payload:    "null",
		wantErrMsg: "invalid payload: not a json object",
	}, {
		name:       "array",
		payload:    `[{"server_id":"sg1"}]`,
		wantErrMsg: "invalid payload: decoding json: json: cannot unmarshal array into Go value of type map[string]json.RawMessage",
	}, {
		name:       "bad_json",
		payload:    `{"server_id":`,
		wantErrMsg: "invalid payload: decoding json: unexpected end of JSON input",
	}, {
		name:       "object_label",
		payload:    `{"country":{"code":"SG"}}`,
		wantErrMsg: `invalid payload: field "country": want string, number, boolean or null, got map[string]interface {}`,
	}, {
		name:       "string_duration",
		payload:    `{"duration":"60000"}`,
		wantErrMsg: `invalid payload: field "duration": want integer milliseconds, got string`,
	}, {
		name:       "fractional_duration",
		payload:    `{"duration":1.5}`,
		wantErrMsg: `invalid payload: field "duration": want integer milliseconds, got 1.5`,
	}, {
		name:       "negative_duration",
		payload:    `{"duration":-1}`,
		wantErrMsg: `invalid payload: field "duration": must not be negative, got -1`,
	}, {
		name:       "negative_exponent_duration",
		payload:    `{"duration":-1e3}`,
		wantErrMsg: `invalid payload: field "duration": must not be negative, got -1000`,
	}, {
		name:       "huge_duration",
		payload:    `{"duration":1e30}`,
		wantErrMsg: `invalid payload: field "duration": want integer milliseconds, got 1e30`,
	}, {
		name:       "int64_overflow_duration",
		payload:    `{"duration":9223372036854775808}`,
		wantErrMsg: `invalid payload: field "duration": want integer milliseconds, got 9223372036854775808`,
	}, {
		name:       "total_overflow",
		payload:    `{"duration":9223372036854775807}`,
		wantErrMsg: `invalid payload: field "duration": 9223372036854775807 overflows the total of 1000`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
			mustTrack(t, s, `{"server_id":"sg1","country":"SG","user_id":"u1","duration":1000}`)
			before := toJSON(t, s.Stats())

			ev, err := s.Track([]byte(tc.payload))
			require.Error(t, err)

			assert.Nil(t, ev)
			assert.ErrorIs(t, err, stats.ErrInvalidPayload)
			assert.Equal(t, tc.wantErrMsg, err.Error())

			assert.Equal(t, 1, s.Len())
			assert.JSONEq(t, before, toJSON(t, s.Stats()))
		})
	}
}

func TestStore_Track_durationTotal(t *testing.T) {
	t.Parallel()

	s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
	mustTrack(t, s, fmt.Sprintf(`{"duration":%d}`, int64(math.MaxInt64-1000)))
	mustTrack(t, s, `{"duration":1000}`)

	_, err := s.Track([]byte(`{"duration":1}`))
	require.ErrorIs(t, err, stats.ErrInvalidPayload)
	assert.Equal(
		t,
		`invalid payload: field "duration": 1 overflows the total of 9223372036854775807`,
		err.Error(),
	)

	// Zero always fits.
	mustTrack(t, s, `{}`)

	assert.Equal(t, 3, s.Len())
	assert.InDelta(t, float64(math.MaxInt64)/3_600_000, s.Stats().TotalDurationHours, 1)
	assert.InDelta(t, float64(math.MaxInt64)/3/60_000, s.Dashboard().AverageSessionMinutes, 1)
}

func TestStore_Stats(t *testing.T) {
	t.Parallel()

	t.Run("example", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
		mustTrack(t, s, `{"server_id":"sg1","country":"SG","duration":60000,"user_id":"u1"}`)

		assert.JSONEq(t, `{
			"total_connections": 1,
			"total_users": 1,
			"total_duration_hours": 0.02,
			"popular_servers": [["sg1", 1]],
			"popular_countries": [["SG", 1]],
			"last_updated": "2026-10-15T12:00:00.000000Z"
		}`, toJSON(t, s.Stats()))
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		snap := s.Stats()

		assert.Zero(t, snap.TotalConnections)
		assert.Zero(t, snap.TotalUsers)
		assert.Zero(t, snap.TotalDurationHours)
		assert.NotNil(t, snap.PopularServers)
		assert.Empty(t, snap.PopularServers)
		assert.NotNil(t, snap.PopularCountries)
		assert.Empty(t, snap.PopularCountries)
	})

	t.Run("counts", func(t *testing.T) {
		t.Parallel()

		const n = 7

		s := stats.NewStore(nil)
		for i := range n {
			mustTrack(t, s, fmt.Sprintf(`{"server_id":"de1","country":"DE","user_id":"u%d"}`, i%3))
		}

		snap := s.Stats()
		assert.Equal(t, n, snap.TotalConnections)
		assert.Equal(t, 3, snap.TotalUsers)
		assert.Equal(t, []stats.KeyCount{{Key: stats.StringLabel("de1"), Count: n}}, snap.PopularServers)
	})

	t.Run("duration_hours", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		var total int64
		for _, d := range []int64{1_234_567, 7_654_321, 18_000} {
			total += d
			mustTrack(t, s, fmt.Sprintf(`{"duration":%d}`, d))
		}

		// 8906888 ms is 2.4741... hours.
		require.Equal(t, int64(8_906_888), total)
		assert.Equal(t, 2.47, s.Stats().TotalDurationHours)
	})

	t.Run("top_ten", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		for i := range 12 {
			for range i + 1 {
				mustTrack(t, s, fmt.Sprintf(`{"server_id":"srv%02d"}`, i))
			}
		}

		servers := s.Stats().PopularServers
		require.Len(t, servers, stats.PopularLimit)

		assert.Equal(t, stats.StringLabel("srv11"), servers[0].Key)
		assert.Equal(t, uint64(12), servers[0].Count)
		assert.Equal(t, stats.StringLabel("srv02"), servers[9].Key)
		assert.Equal(t, uint64(3), servers[9].Count)
	})

	t.Run("ties_and_nulls", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		mustTrack(t, s, `{"server_id":"b"}`)
		mustTrack(t, s, `{"server_id":1}`)
		mustTrack(t, s, `{"server_id":"1"}`)
		mustTrack(t, s, `{}`)
		mustTrack(t, s, `{"server_id":"a"}`)
		mustTrack(t, s, `{"server_id":null}`)

		assert.JSONEq(
			t,
			`[[null,2],["b",1],[1,1],["1",1],["a",1]]`,
			toJSON(t, s.Stats().PopularServers),
		)
	})

	t.Run("null_string", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		mustTrack(t, s, `{"server_id":"null"}`)
		mustTrack(t, s, `{"server_id":null}`)
		mustTrack(t, s, `{"server_id":"null"}`)

		assert.JSONEq(t, `[["null",2],[null,1]]`, toJSON(t, s.Stats().PopularServers))
	})
}

func TestStore_Dashboard(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)

		assert.JSONEq(t, `{
			"total_connections": 0,
			"unique_users": 0,
			"average_session_minutes": 0,
			"top_countries": {},
			"recent_connections": []
		}`, toJSON(t, s.Dashboard()))
	})

	t.Run("average", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		mustTrack(t, s, `{"duration":60000}`)
		mustTrack(t, s, `{"duration":90000}`)
		mustTrack(t, s, `{"duration":100000}`)

		// 250000 / 3 / 60000 is 1.3888... minutes.
		assert.Equal(t, 1.39, s.Dashboard().AverageSessionMinutes)
	})

	t.Run("top_countries", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(nil)
		for i, c := range []string{"SG", "US", "DE", "JP", "FR", "NL"} {
			for range 6 - i {
				mustTrack(t, s, fmt.Sprintf(`{"country":%q}`, c))
			}
		}
		mustTrack(t, s, `{}`)
		mustTrack(t, s, `{}`)
		mustTrack(t, s, `{}`)

		d := s.Dashboard()
		require.Len(t, d.TopCountries, stats.TopCountriesLimit)

		assert.Equal(
			t,
			`{"SG":6,"US":5,"DE":4,"JP":3,"null":3}`,
			toJSON(t, d.TopCountries),
		)
	})

	t.Run("recent", func(t *testing.T) {
		t.Parallel()

		const n = 25

		s := stats.NewStore(&stats.Config{Clock: newTickingClock()})
		for i := range n {
			mustTrack(t, s, fmt.Sprintf(`{"user_id":"u%d"}`, i))
		}

		recent := s.Dashboard().RecentConnections
		require.Len(t, recent, stats.RecentLimit)

		assert.Equal(t, stats.StringLabel("u24"), recent[0].UserID)
		assert.Equal(t, stats.StringLabel("u5"), recent[len(recent)-1].UserID)
		for i := 1; i < len(recent); i++ {
			assert.Greater(t, recent[i-1].Timestamp, recent[i].Timestamp)
		}
	})

	t.Run("recent_same_time", func(t *testing.T) {
		t.Parallel()

		s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
		mustTrack(t, s, `{"user_id":"first"}`)
		mustTrack(t, s, `{"user_id":"second"}`)

		recent := s.Dashboard().RecentConnections
		require.Len(t, recent, 2)

		assert.Equal(t, stats.StringLabel("second"), recent[0].UserID)
		assert.Equal(t, stats.StringLabel("first"), recent[1].UserID)
	})
}

func TestStore_Health(t *testing.T) {
	t.Parallel()

	s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
	mustTrack(t, s, `{}`)

	assert.Equal(t, &stats.Health{
		Status:           "healthy",
		Timestamp:        "2026-10-15T12:00:00.000000Z",
		ConnectionsCount: 1,
	}, s.Health())
}

func TestStore_readOnly(t *testing.T) {
	t.Parallel()

	s := stats.NewStore(&stats.Config{Clock: newFixedClock()})
	mustTrack(t, s, `{"server_id":"sg1","country":"SG","duration":60000}`)
	mustTrack(t, s, `{"server_id":"us1","country":"US","duration":30000,"user_id":"u2"}`)

	snap, dash, health := toJSON(t, s.Stats()), toJSON(t, s.Dashboard()), toJSON(t, s.Health())

	assert.Equal(t, snap, toJSON(t, s.Stats()))
	assert.Equal(t, dash, toJSON(t, s.Dashboard()))
	assert.Equal(t, health, toJSON(t, s.Health()))
	assert.Equal(t, 2, s.Len())
}

func TestStore_concurrent(t *testing.T) {
	t.Parallel()

	const (
		workers   = 16
		perWorker = 50
	)

	s := stats.NewStore(nil)

	wg := &sync.WaitGroup{}
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range perWorker {
				payload := fmt.Sprintf(`{"server_id":"s%d","country":"c%d","user_id":"u%d"}`, i%4, w%3, w)
				_, err := s.Track([]byte(payload))
				assert.NoError(t, err)

				_ = s.Dashboard()
			}
		}()
	}

	wg.Wait()

	const total = workers * perWorker

	snap := s.Stats()
	require.Equal(t, total, snap.TotalConnections)
	assert.Equal(t, workers, snap.TotalUsers)

	var servers, countries uint64
	for _, kc := range snap.PopularServers {
		servers += kc.Count
	}
	for _, kc := range snap.PopularCountries {
		countries += kc.Count
	}

	assert.Equal(t, uint64(total), servers)
	assert.Equal(t, uint64(total), countries)
}

func TestLabel_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		in         string
		want       stats.Label
		wantErrMsg string
	}{{
		name: "null",
		in:   "null",
		want: stats.NullLabel,
	}, {
		name: "string",
		in:   `"sg1"`,
		want: stats.StringLabel("sg1"),
	}, {
		name:       "object",
		in:         `{"code":"SG"}`,
		wantErrMsg: "want string, number, boolean or null, got map[string]interface {}",
	}, {
		name:       "array",
		in:         `["SG"]`,
		wantErrMsg: "want string, number, boolean or null, got []interface {}",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var l stats.Label
			err := l.UnmarshalJSON([]byte(tc.in))
			if tc.wantErrMsg != "" {
				assert.EqualError(t, err, tc.wantErrMsg)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, l)
		})
	}

	t.Run("number", func(t *testing.T) {
		t.Parallel()

		var l stats.Label
		require.NoError(t, l.UnmarshalJSON([]byte("7")))

		assert.NotEqual(t, stats.StringLabel("7"), l)
		assert.Equal(t, "7", l.String())
		assert.Equal(t, "7", toJSON(t, l))
	})

	t.Run("bool", func(t *testing.T) {
		t.Parallel()

		var l stats.Label
		require.NoError(t, l.UnmarshalJSON([]byte("true")))

		assert.NotEqual(t, stats.StringLabel("true"), l)
		assert.False(t, l.IsNull())
		assert.Equal(t, "true", toJSON(t, l))
	})
}
