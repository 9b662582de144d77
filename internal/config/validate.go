package config

import (
	"errors"
	"fmt"
)

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "invalid server port: %d", c.Server.Port)
	rl := c.Server.RateLimit
	check(!rl.Enabled || (rl.Rate > 0 && rl.Burst >= 1), "rate limit needs a positive rate and burst")

	if c.TLS.Enabled {
		check(len(c.TLS.Domains) > 0, "TLS enabled but no domains specified")
		check(c.TLS.Email != "", "TLS enabled but no email specified")
	}

	check(c.Query.Timeout >= 0, "query timeout must not be negative: %s", c.Query.Timeout)
	check(c.Query.LayerCacheSize >= 1, "query layer cache size must be at least 1: %d", c.Query.LayerCacheSize)
	check(c.Query.ProgressLogEvery >= 0, "query progress log interval must not be negative: %d", c.Query.ProgressLogEvery)

	switch c.Logging.Format {
	case "json", "text", "console":
	default:
		check(false, "unknown log format: %s", c.Logging.Format)
	}

	errs = append(errs, c.Storage.validate()...)
	return errors.Join(errs...)
}

func (s *StorageConfig) validate() []error {
	var errs []error
	if s.SyncInterval < 0 {
		errs = append(errs, fmt.Errorf("storage sync interval must not be negative: %s", s.SyncInterval))
	}

	switch s.Type {
	case "local":
		if s.LocalPath == "" {
			errs = append(errs, errors.New("local storage path is required"))
		}
	case "s3":
		if s.S3.Bucket == "" {
			errs = append(errs, errors.New("S3 bucket is required"))
		}
		if s.S3.Region == "" {
			errs = append(errs, errors.New("S3 region is required"))
		}
	case "azure":
		if s.Azure.Container == "" {
			errs = append(errs, errors.New("azure container is required"))
		}
		if s.Azure.AccountName == "" && s.Azure.ConnectionString == "" {
			errs = append(errs, errors.New("azure account name or connection string is required"))
		}
	case "http":
		if s.HTTP.BaseURL == "" {
			errs = append(errs, errors.New("HTTP base URL is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type: %s", s.Type))
	}
	return errs
}
