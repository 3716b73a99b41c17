// Package reliability provides ledger backups: consistent snapshots, compression,
// upload to S3-compatible object storage and retention on both ends.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
)

const (
	backupPrefix    = "ledger-backup-"
	backupSuffix    = ".db.gz"
	backupTimestamp = "2006-01-02-150405"
)

// ObjectStore is the remote side of a backup
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, checksum string) (string, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Key(filename string) string
}

// ObjectInfo describes one stored object
type ObjectInfo struct {
	LastModified time.Time
	Key          string
	Size         int64
}

// BackupInfo describes one local backup archive
type BackupInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupResult reports one completed backup
type BackupResult struct {
	Filename  string        `json:"filename"`
	Location  string        `json:"location"`
	Checksum  string        `json:"checksum"`
	SizeBytes int64         `json:"size_bytes"`
	Duration  time.Duration `json:"duration"`
	Uploaded  bool          `json:"uploaded"`
}

// BackupService snapshots the ledger database and keeps the newest backups
type BackupService struct {
	db        *database.DB
	gate      *database.Gate
	store     ObjectStore
	clock     domain.Clock
	events    *events.Manager
	dir       string
	retention int
	log       zerolog.Logger
}

// NewBackupService creates a backup service writing archives to dir.
// A nil store keeps backups local only.
func NewBackupService(
	db *database.DB,
	gate *database.Gate,
	store ObjectStore,
	dir string,
	retention int,
	clock domain.Clock,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	if retention < 1 {
		retention = 1
	}
	return &BackupService{
		db:        db,
		gate:      gate,
		store:     store,
		clock:     clock,
		events:    eventManager,
		dir:       dir,
		retention: retention,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Run snapshots the ledger, compresses it, uploads it when a store is configured
// and prunes archives beyond the retention count
func (s *BackupService) Run(ctx context.Context) (*BackupResult, error) {
	timer := utils.NewTimer("ledger_backup", time.Minute, s.log)
	s.log.Info().Msg("Starting ledger backup")

	stagingDir := filepath.Join(s.dir, "staging")
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "ledger.db")
	err := s.gate.Read(func() error {
		return s.db.Snapshot(ctx, snapshotPath)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	filename := backupPrefix + s.clock.Now().Format(backupTimestamp) + backupSuffix
	archivePath := filepath.Join(s.dir, filename)

	size, checksum, err := compressFile(snapshotPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	result := &BackupResult{
		Filename:  filename,
		Location:  archivePath,
		Checksum:  checksum,
		SizeBytes: size,
	}

	if s.store != nil {
		location, err := s.upload(ctx, archivePath, filename, checksum)
		if err != nil {
			return nil, err
		}
		result.Location = location
		result.Uploaded = true
		s.rotateRemote(ctx)
	}

	if err := s.rotateLocal(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune local backups")
	}

	result.Duration = timer.Stop()
	s.events.Emit("reliability", &events.BackupCompletedData{
		Location:   result.Location,
		SizeBytes:  result.SizeBytes,
		DurationMs: result.Duration.Milliseconds(),
	})

	s.log.Info().
		Str("archive", filename).
		Str("location", result.Location).
		Int64("size_bytes", size).
		Bool("uploaded", result.Uploaded).
		Msg("Ledger backup completed")

	return result, nil
}

// ListBackups lists local backup archives, newest first
func (s *BackupService) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		timestamp, ok := parseBackupName(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Timestamp: timestamp,
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

func (s *BackupService) upload(ctx context.Context, archivePath, filename, checksum string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	location, err := s.store.Upload(ctx, s.store.Key(filename), file, checksum)
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}
	return location, nil
}

func (s *BackupService) rotateLocal() error {
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= s.retention {
		return nil
	}

	for _, backup := range backups[s.retention:] {
		if err := os.Remove(filepath.Join(s.dir, backup.Filename)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", backup.Filename, err)
		}
		s.log.Debug().Str("filename", backup.Filename).Msg("Removed old local backup")
	}
	return nil
}

// rotateRemote deletes stored backups beyond the retention count. Failures are
// logged; a backup that uploaded successfully is not failed by cleanup.
func (s *BackupService) rotateRemote(ctx context.Context) {
	objects, err := s.store.List(ctx, s.store.Key(backupPrefix))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list stored backups")
		return
	}
	if len(objects) <= s.retention {
		return
	}

	// Timestamped names sort chronologically
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key > objects[j].Key
	})

	deleted := 0
	for _, obj := range objects[s.retention:] {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.log.Error().Err(err).Str("key", obj.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(objects)-deleted).
		Msg("Stored backup rotation completed")
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	t, err := time.Parse(backupTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// compressFile gzips src into dst and returns the archive size and its sha256
func compressFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	gz.Name = filepath.Base(src)

	if _, err := io.Copy(gz, in); err != nil {
		return 0, "", err
	}
	if err := gz.Close(); err != nil {
		return 0, "", err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, "", err
	}

	return info.Size(), fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
