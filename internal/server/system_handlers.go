package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/reliability"
	"github.com/aristath/sarraf/internal/scheduler"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// BackupRunner takes and lists ledger backups
type BackupRunner interface {
	Run(ctx context.Context) (*reliability.BackupResult, error)
	ListBackups() ([]reliability.BackupInfo, error)
}

// Auditor checks ledger integrity without side effects
type Auditor interface {
	Audit(ctx context.Context) (*scheduler.AuditReport, error)
}

// SystemStatus is the response of GET /api/system/status
type SystemStatus struct {
	Database          *database.Stats `json:"database,omitempty"`
	Status            string          `json:"status"`
	Uptime            string          `json:"uptime"`
	GoVersion         string          `json:"go_version"`
	DatabaseError     string          `json:"database_error,omitempty"`
	CPUPercent        float64         `json:"cpu_percent"`
	MemoryUsedPercent float64         `json:"memory_used_percent"`
	Goroutines        int             `json:"goroutines"`
	DatabaseHealthy   bool            `json:"database_healthy"`
}

// SystemHandlers serves operational endpoints
type SystemHandlers struct {
	startedAt time.Time
	ledgerDB  *database.DB
	backup    BackupRunner
	auditor   Auditor
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. jobs become triggerable by name.
func NewSystemHandlers(
	ledgerDB *database.DB,
	backup BackupRunner,
	auditor Auditor,
	sched *scheduler.Scheduler,
	jobs []scheduler.Job,
	log zerolog.Logger,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}

	return &SystemHandlers{
		startedAt: time.Now(),
		ledgerDB:  ledgerDB,
		backup:    backup,
		auditor:   auditor,
		scheduler: sched,
		jobs:      byName,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/audit", h.HandleAudit)
		r.Get("/backups", h.HandleListBackups)
		r.Post("/backup", h.HandleBackup)
		r.Post("/jobs/{name}/run", h.HandleRunJob)
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	status := SystemStatus{
		Status:            "ok",
		Uptime:            time.Since(h.startedAt).Round(time.Second).String(),
		GoVersion:         runtime.Version(),
		Goroutines:        runtime.NumGoroutine(),
		CPUPercent:        cpuPercent,
		MemoryUsedPercent: memPercent,
		DatabaseHealthy:   true,
	}

	if err := h.ledgerDB.HealthCheck(r.Context()); err != nil {
		status.Status = "degraded"
		status.DatabaseHealthy = false
		status.DatabaseError = err.Error()
	}

	if stats, err := h.ledgerDB.GetStats(r.Context()); err == nil {
		status.Database = stats
	} else {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
	}

	utils.WriteData(w, http.StatusOK, status, nil, h.log)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledgerDB.GetStats(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteData(w, http.StatusOK, stats, map[string]interface{}{"database": h.ledgerDB.Name()}, h.log)
}

// HandleAudit handles GET /api/system/audit
func (h *SystemHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditor.Audit(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteData(w, http.StatusOK, report, map[string]interface{}{"ok": report.OK()}, h.log)
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backup.ListBackups()
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteData(w, http.StatusOK, backups, map[string]interface{}{"count": len(backups)}, h.log)
}

// HandleBackup handles POST /api/system/backup
func (h *SystemHandlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	result, err := h.backup.Run(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteData(w, http.StatusOK, result, nil, h.log)
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		utils.WriteError(w, fmt.Errorf("%w: job %q", domain.ErrNotFound, name), h.log)
		return
	}

	start := time.Now()
	if err := h.scheduler.RunNow(job); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil, h.log)
}

// getSystemStats returns CPU and RAM usage percentages, sampling CPU over 100ms
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
