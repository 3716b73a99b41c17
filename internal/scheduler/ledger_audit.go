package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
)

const auditTimeout = 5 * time.Minute

// AuditReport summarizes one ledger audit
type AuditReport struct {
	Problems          []string `json:"problems"`
	UnbalancedEntries int      `json:"unbalanced_entries"`
	StatementBreaks   int      `json:"statement_breaks"`
	StatementsChecked int      `json:"statements_checked"`
}

// OK reports whether the audit found nothing wrong
func (r *AuditReport) OK() bool {
	return len(r.Problems) == 0
}

// LedgerAuditJob checks that every journal entry balances and that every
// counterpart statement replays to its stored balance
type LedgerAuditJob struct {
	gate       *database.Gate
	journal    JournalAuditor
	statements StatementAuditor
	events     *events.Manager
	log        zerolog.Logger
}

// NewLedgerAuditJob creates a new LedgerAuditJob
func NewLedgerAuditJob(
	gate *database.Gate,
	journal JournalAuditor,
	statements StatementAuditor,
	eventManager *events.Manager,
	log zerolog.Logger,
) *LedgerAuditJob {
	return &LedgerAuditJob{
		gate:       gate,
		journal:    journal,
		statements: statements,
		events:     eventManager,
		log:        log.With().Str("job", "ledger_audit").Logger(),
	}
}

// Name returns the job name
func (j *LedgerAuditJob) Name() string {
	return "ledger_audit"
}

// Run executes the audit and fails when it finds problems
func (j *LedgerAuditJob) Run() error {
	defer utils.OperationTimer("ledger_audit", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	report, err := j.Audit(ctx)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("ledger audit found %d problems", len(report.Problems))
	}
	return nil
}

// Audit runs the checks under the read side of the gate, so a settlement
// reprocess is never observed half done. Problems are reported, not returned as errors.
func (j *LedgerAuditJob) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{}

	err := j.gate.Read(func() error {
		imbalances, err := j.journal.FindImbalances(ctx)
		if err != nil {
			return fmt.Errorf("failed to check journal balance: %w", err)
		}
		for _, imb := range imbalances {
			report.UnbalancedEntries++
			report.Problems = append(report.Problems, fmt.Sprintf(
				"journal entry %d unbalanced in %s: debits %s, credits %s",
				imb.EntryID, imb.Currency, imb.Debits, imb.Credits))
		}

		balances, err := j.statements.ListBalances(ctx)
		if err != nil {
			return fmt.Errorf("failed to list counterpart balances: %w", err)
		}
		for _, bal := range balances {
			check, err := j.statements.VerifyStatement(ctx, bal.CounterpartID, bal.Currency)
			if err != nil {
				return fmt.Errorf("failed to verify statement for counterpart %d: %w", bal.CounterpartID, err)
			}
			report.StatementsChecked++
			if !check.OK {
				report.StatementBreaks++
				report.Problems = append(report.Problems, fmt.Sprintf(
					"counterpart %d %s statement replays to %s, stored balance %s",
					check.CounterpartID, check.Currency, check.Replayed, check.Stored))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.OK() {
		j.log.Info().
			Int("statements", report.StatementsChecked).
			Msg("Ledger audit passed")
		return report, nil
	}

	j.log.Error().
		Int("unbalanced_entries", report.UnbalancedEntries).
		Int("statement_breaks", report.StatementBreaks).
		Strs("problems", report.Problems).
		Msg("Ledger audit failed")

	j.events.Emit("scheduler", &events.LedgerAuditFailedData{
		Problems:          report.Problems,
		UnbalancedEntries: report.UnbalancedEntries,
		StatementBreaks:   report.StatementBreaks,
	})

	return report, nil
}
