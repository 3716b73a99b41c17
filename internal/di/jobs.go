package di

import (
	"fmt"

	"github.com/aristath/sarraf/internal/config"
	"github.com/aristath/sarraf/internal/scheduler"
	"github.com/rs/zerolog"
)

// walCheckpointSchedule runs a TRUNCATE checkpoint every five minutes
const walCheckpointSchedule = "0 */5 * * * *"

// RegisterJobs creates the background jobs and schedules them.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)

	instances := &JobInstances{
		LedgerAudit: scheduler.NewLedgerAuditJob(
			container.Gate,
			container.Journal,
			container.Ledger,
			container.EventManager,
			log,
		),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.LedgerDB, container.Gate, log),
		LedgerBackup:  scheduler.NewLedgerBackupJob(container.BackupService, log),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.AuditSchedule, instances.LedgerAudit},
		{walCheckpointSchedule, instances.WALCheckpoint},
		{cfg.BackupSchedule, instances.LedgerBackup},
	}

	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", s.job.Name(), err)
		}
	}

	return instances, nil
}
