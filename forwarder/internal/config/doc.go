// Package config resolves the forwarder configuration from the environment.
//
// Load(envFile) reads an optional dotenv file, overlays real environment
// variables (which always win), applies defaults and validates the result.
// The returned Config is never mutated afterwards; it is passed explicitly to
// the sampler, delivery client and scheduler constructors.
//
// Recognized keys:
//   - SNMP_TARGET, SNMP_PORT, SNMP_COMMUNITY, SNMP_VERSION (1|2c),
//     SNMP_TIMEOUT, SNMP_REQUEST (get|getnext)
//   - OIDS: comma-separated dotted-decimal list, required
//   - POLL_INTERVAL: seconds ("5", "0.5") or a Go duration ("5s")
//   - API_ENDPOINT (required), API_KEY, API_KEY_HEADER, API_TIMEOUT,
//     API_INSECURE_SKIP_VERIFY
//   - RETRY_MAX_ATTEMPTS, RETRY_BASE_DELAY, RETRY_MAX_DELAY, RETRY_JITTER,
//     RETRY_POLLS
//   - WORKERS, UNIT_MAP_FILE
//   - LOG_LEVEL, LOG_FORMAT, LOG_FILE
//   - STATUS_ADDR, STATUS_API_KEY, STATUS_TTL
//
// Watch(ctx, envFile, onChange) uses fsnotify to re-run Load whenever the
// dotenv file is written and hands the new Config to onChange. Callers decide
// what may change live; the forwarder only applies LOG_LEVEL.
package config
