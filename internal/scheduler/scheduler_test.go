package scheduler

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/reliability"
	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.AddJob("@every 1h", &countingJob{}))
	assert.NoError(t, s.AddJob("0 */15 * * * *", &countingJob{}))
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
	assert.Len(t, s.cron.Entries(), 2)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_RunsScheduledJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

type auditFixture struct {
	job    *LedgerAuditJob
	db     *sql.DB
	logs   *bytes.Buffer
	failed []*events.Event
}

func setupAudit(t *testing.T) *auditFixture {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "audit")
	t.Cleanup(cleanup)

	conn := db.Conn()
	clock := testingpkg.NewClock()
	log := zerolog.Nop()

	j := journal.New(journal.NewRepository(conn, log), clock, &testingpkg.SequenceIDs{}, nil, log)
	ledger := counterparts.NewLedger(conn, clock, log)
	manager := events.NewManager(events.NewBus(log), clock, &testingpkg.SequenceIDs{}, log)

	f := &auditFixture{db: conn, logs: &bytes.Buffer{}}
	manager.Bus().Subscribe(func(e *events.Event) { f.failed = append(f.failed, e) }, events.LedgerAuditFailed)

	party := testingpkg.InsertParty(t, conn, "Audit Party")
	amount := decimal.RequireFromString("250")
	err := database.WithTransaction(context.Background(), conn, func(tx *sql.Tx) error {
		if _, err := j.PostEntry(context.Background(), tx, journal.EntryInput{
			EntryType: journal.EntryReceipt,
			Lines: []journal.Line{
				journal.Debit(journal.AccountCashBank, domain.CurrencyAED, amount),
				journal.Credit(journal.AccountReceivable, domain.CurrencyAED, amount),
			},
		}); err != nil {
			return err
		}
		_, err := ledger.UpdateBalance(context.Background(), tx, counterparts.BalanceUpdate{
			CounterpartID: party,
			Currency:      domain.CurrencyAED,
			Amount:        amount,
			Type:          domain.TransactionReceipt,
		})
		return err
	})
	require.NoError(t, err)

	f.job = NewLedgerAuditJob(database.NewGate(), j, ledger, manager, zerolog.New(f.logs).Level(zerolog.DebugLevel))
	return f
}

func TestLedgerAuditJob_Passes(t *testing.T) {
	f := setupAudit(t)

	report, err := f.job.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.StatementsChecked)
	assert.NoError(t, f.job.Run())
	assert.Empty(t, f.failed)
	assert.Equal(t, "ledger_audit", f.job.Name())

	// Run reports its duration
	assert.Contains(t, f.logs.String(), `"operation":"ledger_audit"`)
	assert.Contains(t, f.logs.String(), "Operation completed")
}

func TestLedgerAuditJob_DetectsStatementBreak(t *testing.T) {
	f := setupAudit(t)

	_, err := f.db.Exec("UPDATE counterpart_balances SET balance = '999'")
	require.NoError(t, err)

	report, err := f.job.Audit(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.StatementBreaks)
	assert.Equal(t, 0, report.UnbalancedEntries)
	assert.Contains(t, report.Problems[0], "stored balance 999")

	require.Len(t, f.failed, 1)
	data := f.failed[0].Data.(*events.LedgerAuditFailedData)
	assert.Equal(t, 1, data.StatementBreaks)
}

func TestLedgerAuditJob_DetectsUnbalancedEntry(t *testing.T) {
	f := setupAudit(t)

	_, err := f.db.Exec("UPDATE journal_entry_lines SET credit_amount = '200' WHERE account_code = ?", journal.AccountReceivable.Code)
	require.NoError(t, err)

	err = f.job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 problems")
	require.Len(t, f.failed, 1)
	assert.Equal(t, 1, f.failed[0].Data.(*events.LedgerAuditFailedData).UnbalancedEntries)
}

func TestWALCheckpointJob(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "wal")
	defer cleanup()

	testingpkg.InsertParty(t, db.Conn(), "WAL Party")

	job := NewWALCheckpointJob(db, database.NewGate(), zerolog.Nop())
	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}

type stubBackupper struct {
	result *reliability.BackupResult
	err    error
	calls  int
}

func (s *stubBackupper) Run(context.Context) (*reliability.BackupResult, error) {
	s.calls++
	return s.result, s.err
}

func TestLedgerBackupJob(t *testing.T) {
	ok := &stubBackupper{result: &reliability.BackupResult{Location: "s3://b/k", SizeBytes: 10}}
	job := NewLedgerBackupJob(ok, zerolog.Nop())
	assert.Equal(t, "ledger_backup", job.Name())
	assert.NoError(t, job.Run())
	assert.Equal(t, 1, ok.calls)

	failing := &stubBackupper{err: errors.New("disk full")}
	assert.EqualError(t, NewLedgerBackupJob(failing, zerolog.Nop()).Run(), "disk full")
}
