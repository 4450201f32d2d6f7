package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "SNOWFLAKED_"

// FromEnv overlays SNOWFLAKED_* environment variables onto cfg. Unset or
// empty variables leave the field alone; malformed values are reported
// together and leave the field unchanged.
func FromEnv(cfg *Config) error {
	var errs error
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, envError(name, v, err))
				return
			}
			*dst = n
		}
	}
	int64Var := func(name string, dst *int64) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = multierr.Append(errs, envError(name, v, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, envError(name, v, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("HTTP_ADDR", &cfg.HTTPAddr)
	int64Var("EPOCH", &cfg.Epoch)
	str("LAYOUT", &cfg.Layout)
	integer("NODE_COUNT", &cfg.NodeCount)
	int64Var("FIRST_NODE_ID", &cfg.FirstNodeID)
	integer("QUEUE_CAPACITY", &cfg.QueueCapacity)
	integer("MAX_RETRIES", &cfg.MaxRetries)
	duration("RETRY_DELAY", &cfg.RetryDelay)
	duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v := os.Getenv(EnvPrefix + "NODES"); v != "" {
		nodes, err := ParseNodeList(v)
		if err != nil {
			errs = multierr.Append(errs, envError("NODES", v, err))
		} else {
			cfg.Nodes = nodes
		}
	}
	return errs
}

// maxNodeRange exceeds the node count of every layout. It bounds both
// the node IDs and the length of a node list.
const maxNodeRange = 1 << 18

// ParseNodeList parses a comma separated list of node IDs and inclusive
// ranges, e.g. "1,2,10-15".
func ParseNodeList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", part, err)
		}
		last := first
		if isRange {
			if last, err = strconv.ParseInt(strings.TrimSpace(hi), 10, 64); err != nil {
				return nil, fmt.Errorf("node range %q: %w", part, err)
			}
			if last < first {
				return nil, fmt.Errorf("node range %q is reversed", part)
			}
		}
		if first >= maxNodeRange || last >= maxNodeRange {
			return nil, fmt.Errorf("node %q exceeds %d", part, maxNodeRange-1)
		}
		if int64(len(ids))+last-first >= maxNodeRange {
			return nil, fmt.Errorf("node list has more than %d entries", maxNodeRange)
		}
		for id := first; id <= last; id++ {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func envError(name, value string, err error) error {
	return fmt.Errorf("config: %s%s=%q: %w", EnvPrefix, name, value, err)
}
