package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// Default values applied when keys are absent.
const (
	DefaultTarget        = "127.0.0.1"
	DefaultPort          = 1161
	DefaultCommunity     = "public"
	DefaultSNMPVersion   = "2c"
	DefaultSNMPTimeout   = 2 * time.Second
	DefaultSNMPRequest   = RequestGet
	DefaultPollInterval  = 5 * time.Second
	DefaultAPIKeyHeader  = "Authorization"
	DefaultAPITimeout    = 10 * time.Second
	DefaultMaxAttempts   = 5
	DefaultBaseDelay     = 1 * time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultJitter        = 0.25
	DefaultWorkers       = 8
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultEnvFile       = ".env"
	DefaultStatusTTL     = 10 * time.Minute
	DefaultStatusKeyHead = "X-API-Key"
)

// SNMP request modes.
const (
	RequestGet     = "get"
	RequestGetNext = "getnext"
)

// ErrInvalid is wrapped by every validation error Load returns.
// A Config that fails validation must prevent the forwarder from starting.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved, read-only forwarder configuration.
type Config struct {
	SNMP   SNMPConfig
	OIDs   []string
	API    APIConfig
	Retry  RetryConfig
	Log    LogConfig
	Status StatusConfig

	// PollInterval is the time between the starts of consecutive cycles.
	PollInterval time.Duration

	// Workers bounds how many OIDs are processed concurrently.
	Workers int

	// UnitMapFile is an optional YAML file of OID-prefix unit overrides.
	UnitMapFile string
}

// SNMPConfig identifies the polled agent.
type SNMPConfig struct {
	Target    string
	Port      int
	Community string
	// Version is "1" or "2c".
	Version string
	Timeout time.Duration
	// Request is RequestGet or RequestGetNext.
	Request string
}

// APIConfig describes the delivery endpoint.
type APIConfig struct {
	Endpoint string
	Key      string
	// KeyHeader carries Key. "Authorization" sends it as a bearer token;
	// any other header gets the raw value.
	KeyHeader          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// RetryConfig is the backoff policy shared by polls and deliveries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	// Polls enables retrying agent_unreachable poll failures.
	// oid_not_found is never retried.
	Polls bool
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string
	Format string
	// File, when set, mirrors log output to a rotated file.
	File string
}

// StatusConfig configures the optional status/metrics listener.
type StatusConfig struct {
	// Addr is the listen address; empty disables the listener.
	Addr      string
	APIKey    string
	KeyHeader string
	// TTL is how long an OID outcome is reported before it counts as stale.
	TTL time.Duration
}

// SlogLevel converts Level to a slog.Level. Unknown values map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads envFile (if present) then the process environment and returns a
// validated Config. A missing envFile is not an error; an empty envFile
// skips the file entirely.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w: read %s: %w", ErrInvalid, envFile, err)
		}
	}
	v.AutomaticEnv()
	setDefaults(v)

	cfg, err := build(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SNMP_TARGET", DefaultTarget)
	v.SetDefault("SNMP_PORT", DefaultPort)
	v.SetDefault("SNMP_COMMUNITY", DefaultCommunity)
	v.SetDefault("SNMP_VERSION", DefaultSNMPVersion)
	v.SetDefault("SNMP_TIMEOUT", DefaultSNMPTimeout.String())
	v.SetDefault("SNMP_REQUEST", DefaultSNMPRequest)
	v.SetDefault("OIDS", "")
	v.SetDefault("POLL_INTERVAL", "5")
	v.SetDefault("API_ENDPOINT", "")
	v.SetDefault("API_KEY", "")
	v.SetDefault("API_KEY_HEADER", DefaultAPIKeyHeader)
	v.SetDefault("API_TIMEOUT", DefaultAPITimeout.String())
	v.SetDefault("API_INSECURE_SKIP_VERIFY", false)
	v.SetDefault("RETRY_MAX_ATTEMPTS", DefaultMaxAttempts)
	v.SetDefault("RETRY_BASE_DELAY", DefaultBaseDelay.String())
	v.SetDefault("RETRY_MAX_DELAY", DefaultMaxDelay.String())
	v.SetDefault("RETRY_JITTER", DefaultJitter)
	v.SetDefault("RETRY_POLLS", true)
	v.SetDefault("WORKERS", DefaultWorkers)
	v.SetDefault("UNIT_MAP_FILE", "")
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
	v.SetDefault("LOG_FORMAT", DefaultLogFormat)
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("STATUS_ADDR", "")
	v.SetDefault("STATUS_API_KEY", "")
	v.SetDefault("STATUS_TTL", DefaultStatusTTL.String())
}

// build converts raw values, reporting the first unparsable one.
func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SNMP: SNMPConfig{
			Target:    strings.TrimSpace(v.GetString("SNMP_TARGET")),
			Community: v.GetString("SNMP_COMMUNITY"),
			Version:   strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v.GetString("SNMP_VERSION")), "v")),
			Request:   strings.ToLower(strings.TrimSpace(v.GetString("SNMP_REQUEST"))),
		},
		OIDs: SplitOIDs(v.GetString("OIDS")),
		API: APIConfig{
			Endpoint:  strings.TrimSpace(v.GetString("API_ENDPOINT")),
			Key:       v.GetString("API_KEY"),
			KeyHeader: strings.TrimSpace(v.GetString("API_KEY_HEADER")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
			File:   v.GetString("LOG_FILE"),
		},
		Status: StatusConfig{
			Addr:      v.GetString("STATUS_ADDR"),
			APIKey:    v.GetString("STATUS_API_KEY"),
			KeyHeader: DefaultStatusKeyHead,
		},
		UnitMapFile: v.GetString("UNIT_MAP_FILE"),
	}

	var err error
	if cfg.SNMP.Port, err = parseInt(v, "SNMP_PORT"); err != nil {
		return nil, err
	}
	if cfg.SNMP.Timeout, err = parseSeconds(v, "SNMP_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseSeconds(v, "POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.API.Timeout, err = parseSeconds(v, "API_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.API.InsecureSkipVerify, err = parseBool(v, "API_INSECURE_SKIP_VERIFY"); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts, err = parseInt(v, "RETRY_MAX_ATTEMPTS"); err != nil {
		return nil, err
	}
	if cfg.Retry.BaseDelay, err = parseSeconds(v, "RETRY_BASE_DELAY"); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = parseSeconds(v, "RETRY_MAX_DELAY"); err != nil {
		return nil, err
	}
	if cfg.Retry.Jitter, err = parseFloat(v, "RETRY_JITTER"); err != nil {
		return nil, err
	}
	if cfg.Retry.Polls, err = parseBool(v, "RETRY_POLLS"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = parseInt(v, "WORKERS"); err != nil {
		return nil, err
	}
	if cfg.Status.TTL, err = parseSeconds(v, "STATUS_TTL"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks required fields and ranges.
func validate(cfg *Config) error {
	if cfg.API.Endpoint == "" {
		return fmt.Errorf("%w: API_ENDPOINT is required", ErrInvalid)
	}
	u, err := url.Parse(cfg.API.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: API_ENDPOINT %q must be an absolute http(s) URL", ErrInvalid, cfg.API.Endpoint)
	}
	if len(cfg.OIDs) == 0 {
		return fmt.Errorf("%w: OIDS must list at least one OID", ErrInvalid)
	}
	for _, oid := range cfg.OIDs {
		if !types.ValidOID(oid) {
			return fmt.Errorf("%w: OIDS: %q is not a dotted-decimal OID", ErrInvalid, oid)
		}
	}
	if cfg.SNMP.Target == "" {
		return fmt.Errorf("%w: SNMP_TARGET must not be empty", ErrInvalid)
	}
	if cfg.SNMP.Port <= 0 || cfg.SNMP.Port > 65535 {
		return fmt.Errorf("%w: SNMP_PORT %d out of range", ErrInvalid, cfg.SNMP.Port)
	}
	switch cfg.SNMP.Version {
	case "1", "2c":
	default:
		return fmt.Errorf("%w: SNMP_VERSION %q (want 1 or 2c)", ErrInvalid, cfg.SNMP.Version)
	}
	switch cfg.SNMP.Request {
	case RequestGet, RequestGetNext:
	default:
		return fmt.Errorf("%w: SNMP_REQUEST %q (want get or getnext)", ErrInvalid, cfg.SNMP.Request)
	}
	if cfg.SNMP.Timeout <= 0 {
		return fmt.Errorf("%w: SNMP_TIMEOUT must be positive", ErrInvalid)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", ErrInvalid)
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("%w: API_TIMEOUT must be positive", ErrInvalid)
	}
	if cfg.API.KeyHeader == "" {
		cfg.API.KeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	}
	if cfg.Retry.BaseDelay <= 0 || cfg.Retry.MaxDelay <= 0 {
		return fmt.Errorf("%w: RETRY_BASE_DELAY and RETRY_MAX_DELAY must be positive", ErrInvalid)
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return fmt.Errorf("%w: RETRY_MAX_DELAY must not be below RETRY_BASE_DELAY", ErrInvalid)
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		return fmt.Errorf("%w: RETRY_JITTER must be in [0, 1)", ErrInvalid)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: WORKERS must be at least 1", ErrInvalid)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: LOG_FORMAT %q (want json or text)", ErrInvalid, cfg.Log.Format)
	}
	if cfg.Status.TTL <= 0 {
		return fmt.Errorf("%w: STATUS_TTL must be positive", ErrInvalid)
	}
	return nil
}

// SplitOIDs parses a comma-separated OID list, dropping blanks and leading dots.
func SplitOIDs(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := types.NormalizeOID(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseSeconds accepts a bare number of seconds ("5", "0.25") or a Go
// duration string ("1500ms").
func parseSeconds(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is neither seconds nor a duration", ErrInvalid, key, raw)
	}
	return d, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, raw)
	}
	return n, nil
}

func parseFloat(v *viper.Viper, key string) (float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, raw)
	}
	return f, nil
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, raw)
	}
	return b, nil
}
