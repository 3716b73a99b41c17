package scheduler

import (
	"context"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size, in frames, above which a checkpoint that
// could not truncate is worth a warning
const walWarnFrames = 1000

// WALCheckpointJob checkpoints the ledger WAL and checks the connection
type WALCheckpointJob struct {
	db   *database.DB
	gate *database.Gate
	log  zerolog.Logger
}

// NewWALCheckpointJob creates a new WALCheckpointJob
func NewWALCheckpointJob(db *database.DB, gate *database.Gate, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		db:   db,
		gate: gate,
		log:  log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the checkpoint
func (j *WALCheckpointJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.db.QuickCheck(ctx); err != nil {
		return err
	}

	var frames, checkpointed int
	err := j.gate.Read(func() error {
		var err error
		frames, checkpointed, err = j.db.WALCheckpoint(ctx, "TRUNCATE")
		return err
	})
	if err != nil {
		return err
	}

	if frames > walWarnFrames && checkpointed < frames {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large and could not be fully checkpointed")
		return nil
	}

	j.log.Debug().
		Int("wal_frames", frames).
		Int("checkpointed", checkpointed).
		Msg("WAL checkpoint completed")

	return nil
}
