package di

import (
	"errors"
	"fmt"

	"github.com/aristath/sarraf/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open and migrate the ledger database
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
// The scheduler is registered but not started.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// Close stops the scheduler, flushes the event sinks and closes the database
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	var errs []error
	// Detach the sink first so a late Emit never reaches a closed queue
	if c.unsubscribeSink != nil {
		c.unsubscribeSink()
	}
	if c.KafkaSink != nil {
		if err := c.KafkaSink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka sink: %w", err))
		}
	}
	if c.stopSinks != nil {
		c.stopSinks()
	}

	if c.LedgerDB != nil {
		if err := c.LedgerDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ledger database: %w", err))
		}
	}
	return errors.Join(errs...)
}
