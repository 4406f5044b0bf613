package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateOperations(); err != nil {
		return err
	}
	if err := c.validateLookup(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if c.Scanner.Workers < 1 {
		return errors.New("scanner.workers must be at least 1")
	}
	if len(c.Scanner.SupportedExtensions) == 0 {
		return errors.New("scanner.supported_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.HeartbeatInterval < 1 {
		return errors.New("stream.heartbeat_interval must be at least 1 second")
	}
	if c.Stream.SubscriberBuffer < 1 {
		return errors.New("stream.subscriber_buffer must be at least 1")
	}
	return nil
}

func (c *Config) validateOperations() error {
	if c.Operations.MaxPending < 1 {
		return errors.New("operations.max_pending must be at least 1")
	}
	if c.Operations.LogRetentionDays < 1 {
		return errors.New("operations.log_retention_days must be at least 1")
	}
	return nil
}

func (c *Config) validateLookup() error {
	if !c.Lookup.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Lookup.BaseURL) == "" {
		return errors.New("lookup.base_url must be set when lookup.enabled is true")
	}
	if c.Lookup.TimeoutSeconds < 1 {
		return errors.New("lookup.timeout_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
