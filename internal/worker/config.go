package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the report queue worker pool.
type Config struct {
	// Concurrency is the number of worker goroutines polling the queue.
	// Kept small so report generation cannot monopolize database
	// connections. Default: 2
	Concurrency int

	// PollInterval is how often each idle worker checks for queued messages.
	// Default: 5 seconds
	PollInterval time.Duration

	// JobTimeout caps how long one report generation may run. The job
	// context is canceled past this point and the job is marked failed.
	// Default: 5 minutes
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs before
	// giving up. Default: 30 seconds
	ShutdownTimeout time.Duration

	// StaleThreshold defines how old a running queue row must be before
	// startup recovery requeues it (the worker that claimed it crashed).
	// Default: 10 minutes
	StaleThreshold time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		PollInterval:    5 * time.Second,
		JobTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		StaleThreshold:  10 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleThreshold < 1*time.Minute {
		return fmt.Errorf("stale threshold must be at least 1 minute, got %v", c.StaleThreshold)
	}
	return nil
}
