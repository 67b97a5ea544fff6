// Package config contains the service configuration.
package config

import (
	"flag"
	"fmt"
	"math"
	"net"
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v7"
)

// Config is the service configuration.  Values come from the defaults, then
// the environment, then the command-line flags.
type Config struct {
	LogFile        string `env:"LOG_FILE"`
	LogFormat      string `env:"LOG_FORMAT"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX"`

	// MaxBodySize is the maximum size of a track request body.
	MaxBodySize datasize.ByteSize `env:"MAX_BODY_SIZE"`

	Port int `env:"PORT"`

	// TrackRateLimit is the number of track requests allowed per client IP
	// per minute.  Zero disables the limit.
	TrackRateLimit int `env:"TRACK_RATE_LIMIT"`

	Verbosity uint `env:"VERBOSE"`

	LogTimestamp bool `env:"LOG_TIMESTAMP"`
}

// Default returns the configuration with default values.
func Default() (c *Config) {
	return &Config{
		LogFile:        "-",
		LogFormat:      string(slogutil.FormatText),
		RedisKeyPrefix: "vpnanalytics",
		MaxBodySize:    64 * datasize.KB,
		Port:           5000,
		LogTimestamp:   true,
	}
}

// Load returns the configuration built from the environment and args.  If
// environ is nil, the process environment is used.
func Load(name string, args []string, environ map[string]string) (c *Config, err error) {
	c = Default()

	err = env.Parse(c, env.Options{Environment: environ})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, `log file path, "-" for stderr`)
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text, json, adguard_legacy, default")
	fs.UintVar(&c.Verbosity, "verbose", c.Verbosity, "verbosity level: 0, 1 or 2")
	fs.BoolVar(&c.LogTimestamp, "log-timestamp", c.LogTimestamp, "add timestamps to log records")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address, empty disables rollups")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.StringVar(&c.RedisKeyPrefix, "redis-key-prefix", c.RedisKeyPrefix, "prefix of Redis rollup keys")
	fs.IntVar(&c.TrackRateLimit, "track-rate-limit", c.TrackRateLimit, "track requests per client IP per minute, 0 disables")
	fs.TextVar(&c.MaxBodySize, "max-body-size", c.MaxBodySize, "maximum track request body size")

	err = fs.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating: %w", err)
	}

	return c, nil
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.InRange("port", c.Port, 1, math.MaxUint16),
		validate.NotNegative("track-rate-limit", c.TrackRateLimit),
		validate.Positive("max-body-size", uint64(c.MaxBodySize)),
		validate.InRange("verbose", c.Verbosity, 0, math.MaxUint8),
		validate.NotEmpty("redis-key-prefix", c.RedisKeyPrefix),
	}

	_, err = slogutil.NewFormat(c.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("log-format: %w", err))
	}

	if c.Verbosity <= math.MaxUint8 {
		_, err = slogutil.VerbosityToLevel(uint8(c.Verbosity))
		if err != nil {
			errs = append(errs, fmt.Errorf("verbose: %w", err))
		}
	}

	return errors.Join(errs...)
}

// RedisEnabled returns true if Redis rollups are configured.
func (c *Config) RedisEnabled() (ok bool) {
	return c.RedisAddr != ""
}

// HTTPAddr returns the address to listen on.
func (c *Config) HTTPAddr() (addr string) {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}
