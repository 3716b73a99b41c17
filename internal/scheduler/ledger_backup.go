package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const backupTimeout = 15 * time.Minute

// LedgerBackupJob takes a scheduled ledger backup
type LedgerBackupJob struct {
	backup Backupper
	log    zerolog.Logger
}

// NewLedgerBackupJob creates a new LedgerBackupJob
func NewLedgerBackupJob(backup Backupper, log zerolog.Logger) *LedgerBackupJob {
	return &LedgerBackupJob{
		backup: backup,
		log:    log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name
func (j *LedgerBackupJob) Name() string {
	return "ledger_backup"
}

// Run executes the backup
func (j *LedgerBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	result, err := j.backup.Run(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("location", result.Location).
		Int64("size_bytes", result.SizeBytes).
		Msg("Scheduled backup stored")
	return nil
}
