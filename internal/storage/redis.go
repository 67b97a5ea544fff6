// Package storage contains the Redis rollups of tracked connection events.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/redis/go-redis/v9"
	"vpn-analytics/internal/stats"
	"vpn-analytics/pkg/utils"
)

// Rollup key expirations.
const (
	HourTTL = 15 * 24 * time.Hour
	DayTTL  = 90 * 24 * time.Hour
)

// Maximum date ranges of a history query, in days.
const (
	MaxHourRangeDays = 15
	MaxDayRangeDays  = 92
)

// Fields of a rollup hash.  Per-label fields are prefixed, null labels have
// fields of their own.
const (
	fieldConnections   = "connections"
	fieldDuration      = "duration_ms"
	fieldServerPrefix  = "server:"
	fieldCountryPrefix = "country:"
	fieldNullServers   = "null_servers"
	fieldNullCountries = "null_countries"
)

// ErrDisabled is returned by [Recorder.History] when rollups are not
// configured.
const ErrDisabled errors.Error = "rollups are disabled"

// ErrBadRange is returned by [Recorder.History] for a date range that is
// reversed or too long.
const ErrBadRange errors.Error = "bad date range"

// Rollup is the aggregate of the events of one time bucket.
type Rollup struct {
	Servers       map[string]int64 `json:"servers"`
	Countries     map[string]int64 `json:"countries"`
	Connections   int64            `json:"connections"`
	DurationMS    int64            `json:"duration_ms"`
	NullServers   int64            `json:"null_servers"`
	NullCountries int64            `json:"null_countries"`
}

// Recorder records connection events into time buckets and reads them back.
type Recorder interface {
	// RecordConnection adds ev to its hour and day buckets.
	RecordConnection(ctx context.Context, ev *stats.ConnectionEvent) (err error)

	// History returns the bucket keys in time order and the rollups of
	// non-empty buckets of granularity between fromDate and toDate inclusive.
	History(
		ctx context.Context,
		fromDate time.Time,
		toDate time.Time,
		granularity string,
	) (keys []string, records map[string]*Rollup, err error)
}

// EmptyRecorder is the [Recorder] used when Redis is not configured.
type EmptyRecorder struct{}

// type check
var _ Recorder = EmptyRecorder{}

// RecordConnection implements the [Recorder] interface for EmptyRecorder.
func (EmptyRecorder) RecordConnection(_ context.Context, _ *stats.ConnectionEvent) (err error) {
	return nil
}

// History implements the [Recorder] interface for EmptyRecorder.  It always
// returns [ErrDisabled].
func (EmptyRecorder) History(
	_ context.Context,
	_ time.Time,
	_ time.Time,
	_ string,
) (keys []string, records map[string]*Rollup, err error) {
	return nil, nil, ErrDisabled
}

// RedisConfig is the configuration of a [Redis] recorder.
type RedisConfig struct {
	// Client is the Redis client.  It must not be nil.
	Client *redis.Client

	// KeyPrefix is prepended to every key.  It must not be empty.
	KeyPrefix string
}

// Redis is the Redis implementation of [Recorder].
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a new *Redis.  c must not be nil.
func NewRedis(c *RedisConfig) (r *Redis) {
	return &Redis{
		client: c.Client,
		prefix: c.KeyPrefix,
	}
}

// Connect returns a client for addr and checks that the server responds.
func Connect(ctx context.Context, addr, password string) (client *redis.Client, err error) {
	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, errors.WithDeferred(
			fmt.Errorf("connecting to redis at %q: %w", addr, err),
			client.Close(),
		)
	}

	return client, nil
}

// type check
var _ Recorder = (*Redis)(nil)

// RecordConnection implements the [Recorder] interface for *Redis.
func (r *Redis) RecordConnection(ctx context.Context, ev *stats.ConnectionEvent) (err error) {
	defer func() { err = errors.Annotate(err, "recording connection %s: %w", ev.ID) }()

	// Create timeframe-based keys
	buckets := []struct {
		key string
		ttl time.Duration
	}{
		{key: utils.HourKey(r.prefix, ev.Time), ttl: HourTTL},
		{key: utils.DayKey(r.prefix, ev.Time), ttl: DayTTL},
	}

	pipe := r.client.TxPipeline()
	for _, b := range buckets {
		pipe.HIncrBy(ctx, b.key, fieldConnections, 1)
		pipe.HIncrBy(ctx, b.key, fieldDuration, ev.Duration)
		pipe.HIncrBy(ctx, b.key, labelField(fieldServerPrefix, fieldNullServers, ev.ServerID), 1)
		pipe.HIncrBy(ctx, b.key, labelField(fieldCountryPrefix, fieldNullCountries, ev.Country), 1)
		pipe.Expire(ctx, b.key, b.ttl)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("executing pipeline: %w", err)
	}

	return nil
}

// History implements the [Recorder] interface for *Redis.
func (r *Redis) History(
	ctx context.Context,
	fromDate time.Time,
	toDate time.Time,
	granularity string,
) (keys []string, records map[string]*Rollup, err error) {
	err = validateRange(fromDate, toDate, granularity)
	if err != nil {
		return nil, nil, err
	}

	defer func() { err = errors.Annotate(err, "reading %s history: %w", granularity) }()

	buckets, err := utils.BucketKeys(r.prefix, granularity, fromDate, toDate)
	if err != nil {
		return nil, nil, err
	}

	// Fetch all buckets in one round trip
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(buckets))
	for _, key := range buckets {
		cmds = append(cmds, pipe.HGetAll(ctx, key))
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("executing pipeline: %w", err)
	}

	keys = []string{}
	records = map[string]*Rollup{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}

		var rollup *Rollup
		rollup, err = parseRollup(fields)
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", buckets[i], err)
		}

		keys = append(keys, buckets[i])
		records[buckets[i]] = rollup
	}

	return keys, records, nil
}

// labelField returns the hash field counting l.
func labelField(prefix, nullField string, l stats.Label) (field string) {
	if l.IsNull() {
		return nullField
	}

	return prefix + l.String()
}

// validateRange returns an error if the dates cannot be queried with
// granularity.
func validateRange(fromDate, toDate time.Time, granularity string) (err error) {
	var maxDays int
	switch granularity {
	case utils.GranularityDay:
		maxDays = MaxDayRangeDays
	case utils.GranularityHour:
		maxDays = MaxHourRangeDays
	default:
		return fmt.Errorf("%w: unknown granularity %q", ErrBadRange, granularity)
	}

	if toDate.Before(fromDate) {
		return fmt.Errorf("%w: to_date is before from_date", ErrBadRange)
	}

	days := int(toDate.Sub(fromDate)/(24*time.Hour)) + 1
	if days > maxDays {
		return fmt.Errorf("%w: %d days, max %d for %s", ErrBadRange, days, maxDays, granularity)
	}

	return nil
}

// parseRollup converts the fields of a rollup hash.
func parseRollup(fields map[string]string) (rollup *Rollup, err error) {
	rollup = &Rollup{
		Servers:   map[string]int64{},
		Countries: map[string]int64{},
	}

	for field, val := range fields {
		var n int64
		n, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}

		switch {
		case field == fieldConnections:
			rollup.Connections = n
		case field == fieldDuration:
			rollup.DurationMS = n
		case field == fieldNullServers:
			rollup.NullServers = n
		case field == fieldNullCountries:
			rollup.NullCountries = n
		case strings.HasPrefix(field, fieldServerPrefix):
			rollup.Servers[strings.TrimPrefix(field, fieldServerPrefix)] = n
		case strings.HasPrefix(field, fieldCountryPrefix):
			rollup.Countries[strings.TrimPrefix(field, fieldCountryPrefix)] = n
		}
	}

	return rollup, nil
}
