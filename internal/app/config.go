package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/queue"
	"github.com/raysh454/scanhub/internal/reports"
	"github.com/raysh454/scanhub/internal/scanner"
	"github.com/raysh454/scanhub/internal/server"
	"github.com/raysh454/scanhub/internal/worker"
)

// Config gathers every component's configuration. It is read from a YAML
// file and then overridden by SCANHUB_* environment variables.
type Config struct {
	Logging  logging.Config `yaml:"logging"`
	Server   server.Config  `yaml:"server"`
	Queue    queue.Config   `yaml:"queue"`
	Reports  reports.Config `yaml:"reports"`
	Alerts   alerts.Config  `yaml:"alerts"`
	Scanners scanner.Config `yaml:"scanners"`
	Worker   worker.Config  `yaml:"worker"`

	// ShutdownTimeout is how long in-flight scans get before they are aborted.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging:         logging.Config{Level: "info"},
		Server:          server.DefaultConfig(),
		Queue:           queue.DefaultConfig(),
		Reports:         reports.Config{Dir: "reports", Attempts: 3, Backoff: 100 * time.Millisecond},
		Alerts:          alerts.Config{Database: database.DefaultConfig()},
		Scanners:        scanner.DefaultConfig(),
		Worker:          worker.DefaultConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// LoadConfig reads path (if non-empty) over the defaults, applies the
// environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst ...*time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			for _, p := range dst {
				*p = d
			}
		}
	}

	str("SCANHUB_LOG_LEVEL", &c.Logging.Level)
	str("SCANHUB_LOG_FILE", &c.Logging.File)
	str("SCANHUB_LISTEN_ADDR", &c.Server.ListenAddr)
	str("SCANHUB_JWT_SECRET", &c.Server.JWTSecret)
	str("SCANHUB_DB_DRIVER", &c.Queue.Database.Driver)
	str("SCANHUB_DB_DSN", &c.Queue.Database.DSN)
	str("SCANHUB_ALERTS_DB_DRIVER", &c.Alerts.Database.Driver)
	str("SCANHUB_ALERTS_DB_DSN", &c.Alerts.Database.DSN)
	str("SCANHUB_REPORTS_DIR", &c.Reports.Dir)
	str("SCANHUB_SCANNER_RUNTIME", &c.Scanners.Runtime)
	num("SCANHUB_WORKER_CONCURRENCY", &c.Worker.Concurrency)
	dur("SCANHUB_SCAN_TIMEOUT", &c.Worker.Timeout)
	str("SCANHUB_INSTANCE_ID", &c.Queue.InstanceID)
	dur("SCANHUB_LEASE_TTL", &c.Queue.LeaseTTL)
	dur("SCANHUB_HEALTH_PROBE_INTERVAL", &c.Queue.HealthProbeInterval)

	if v, ok := lookup("SCANHUB_ALERTS_DEDUPE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCANHUB_ALERTS_DEDUPE: %w", err))
		} else {
			c.Alerts.Dedupe = b
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Queue.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue.database: %w", err))
	}
	if err := c.Alerts.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("alerts.database: %w", err))
	}
	if strings.TrimSpace(c.Reports.Dir) == "" {
		errs = append(errs, errors.New("reports.dir is required"))
	}
	switch c.Scanners.Runtime {
	case scanner.RuntimeExec, scanner.RuntimeDocker:
	default:
		errs = append(errs, fmt.Errorf("scanners.runtime: unknown runtime %q", c.Scanners.Runtime))
	}
	if c.Worker.Timeout <= 0 {
		errs = append(errs, errors.New("worker.timeout must be positive"))
	}
	if c.Worker.Concurrency < 0 {
		errs = append(errs, errors.New("worker.concurrency must not be negative"))
	}
	if c.Queue.LeaseTTL <= 0 {
		errs = append(errs, errors.New("queue.lease_ttl must be positive"))
	} else if c.Worker.Heartbeat <= 0 || c.Worker.Heartbeat*2 > c.Queue.LeaseTTL {
		errs = append(errs, fmt.Errorf("worker.heartbeat must be positive and at most half of queue.lease_ttl (%s)", c.Queue.LeaseTTL))
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	return errors.Join(errs...)
}
