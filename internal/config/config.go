// Package config loads the snowflaked process configuration.
//
// Sources are applied in order: Default, a YAML or JSON file (Load),
// SNOWFLAKED_* environment variables (FromEnv) and finally command line
// flags set by the caller. Validate reports every problem at once.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/sxyafiq/snowflaked/internal/logging"
	"github.com/sxyafiq/snowflaked/pool"
	"github.com/sxyafiq/snowflaked/snowflake"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`

	// Epoch in milliseconds since the UNIX epoch.
	Epoch int64 `json:"epoch" yaml:"epoch"`
	// Layout is a preset name, see snowflake.LayoutNames.
	Layout string `json:"layout" yaml:"layout"`

	// Nodes lists node IDs explicitly. When empty, NodeCount consecutive
	// IDs starting at FirstNodeID are used.
	Nodes       []int64 `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	NodeCount   int     `json:"nodeCount" yaml:"nodeCount"`
	FirstNodeID int64   `json:"firstNodeID" yaml:"firstNodeID"`

	QueueCapacity int      `json:"queueCapacity" yaml:"queueCapacity"`
	MaxRetries    int      `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay    Duration `json:"retryDelay" yaml:"retryDelay"`

	RequestTimeout  Duration `json:"requestTimeout" yaml:"requestTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`

	Log Log `json:"log" yaml:"log"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Duration is a time.Duration written as "250ms" or "5s" in config files.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		Epoch:           snowflake.Epoch,
		Layout:          "default",
		NodeCount:       pool.DefaultNodeCount,
		QueueCapacity:   pool.DefaultQueueCapacity,
		MaxRetries:      snowflake.DefaultMaxRetries,
		RetryDelay:      Duration(snowflake.DefaultRetryDelay),
		RequestTimeout:  Duration(time.Second),
		ShutdownTimeout: Duration(5 * time.Second),
		Log: Log{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top
// of the defaults. If path is empty, returns defaults. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config: unsupported file extension %q (use .yaml, .yml or .json)", ext)
	}
	return cfg, nil
}

// NodeIDs returns the node identities the pool will run.
func (c Config) NodeIDs() []int64 {
	if len(c.Nodes) > 0 {
		return c.Nodes
	}
	return pool.NodeRange(c.FirstNodeID, c.NodeCount)
}

// Validate reports every invalid field, each as a *snowflake.ConfigError.
func (c Config) Validate() error {
	var errs error
	if c.HTTPAddr == "" {
		errs = multierr.Append(errs, snowflake.NewConfigError("httpAddr", c.HTTPAddr, "empty listen address", ""))
	}
	if c.Epoch < 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("epoch", c.Epoch, "negative epoch", "must be >= 0"))
	}

	layout, err := snowflake.ParseLayout(c.Layout)
	if err != nil {
		errs = multierr.Append(errs, snowflake.NewConfigError("layout", c.Layout, "unknown layout",
			"one of "+strings.Join(snowflake.LayoutNames(), ", ")))
	} else {
		errs = multierr.Append(errs, c.validateNodes(layout))
	}

	if c.QueueCapacity < 1 {
		errs = multierr.Append(errs, snowflake.NewConfigError("queueCapacity", c.QueueCapacity, "queue too small", "must be >= 1"))
	}
	if c.MaxRetries < 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("maxRetries", c.MaxRetries, "negative retry count", "must be >= 0"))
	}
	if c.RetryDelay < 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("retryDelay", c.RetryDelay, "negative delay", "must be >= 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("requestTimeout", c.RequestTimeout, "timeout must be positive", ""))
	}
	if c.ShutdownTimeout <= 0 {
		errs = multierr.Append(errs, snowflake.NewConfigError("shutdownTimeout", c.ShutdownTimeout, "timeout must be positive", ""))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, snowflake.NewConfigError("log.level", c.Log.Level, "unknown log level", ""))
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = multierr.Append(errs, snowflake.NewConfigError("log.format", c.Log.Format, "unknown log format",
			"one of "+logging.FormatText+", "+logging.FormatJSON))
	}
	return errs
}

func (c Config) validateNodes(layout snowflake.BitLayout) error {
	if len(c.Nodes) == 0 && c.NodeCount < 1 {
		return snowflake.NewConfigError("nodeCount", c.NodeCount, "no nodes configured", "must be >= 1")
	}
	if len(c.Nodes) == 0 && int64(c.NodeCount) > layout.MaxNodeID()+1 {
		return snowflake.NewConfigError("nodeCount", c.NodeCount, "more nodes than the layout holds",
			fmt.Sprintf("must be <= %d", layout.MaxNodeID()+1))
	}

	var errs error
	seen := make(map[int64]bool)
	for _, id := range c.NodeIDs() {
		if id < 0 || id > layout.MaxNodeID() {
			errs = multierr.Append(errs, snowflake.NewNodeIDError("nodes", id, layout.MaxNodeID()))
			continue
		}
		if seen[id] {
			errs = multierr.Append(errs, snowflake.NewConfigError("nodes", id, "duplicate node id", "node ids must be unique"))
		}
		seen[id] = true
	}
	return errs
}

// PoolConfig converts c into a pool configuration. The logger and observer
// are left for the caller.
func (c Config) PoolConfig() (pool.Config, error) {
	layout, err := snowflake.ParseLayout(c.Layout)
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		NodeIDs:       c.NodeIDs(),
		Epoch:         c.Epoch,
		Layout:        layout,
		QueueCapacity: c.QueueCapacity,
		Retry: snowflake.RetryPolicy{
			MaxRetries: c.MaxRetries,
			Delay:      c.RetryDelay.D(),
		},
	}, nil
}

// LoggingOptions returns the options for logging.New.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}
