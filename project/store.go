// Package project holds the durable, crash-recoverable record of every
// project's stage, progress, and per-stage results.
//
// Each project is checkpointed to one JSON file named after its id. Writes are
// whole-file rewrites through a temp file and rename, so a crash never leaves a
// truncated checkpoint behind. Records are loaded lazily the first time an id
// is referenced after a restart.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	checkpointExt = ".json"
	lockFileName  = ".slidecast.lock"
)

// ErrLocked is returned by Open when another process owns the checkpoint directory.
var ErrLocked = errors.New("checkpoint directory is locked by another process")

// Store is safe for concurrent use. Read-modify-write sequences are serialized
// per project id; unrelated projects never contend.
type Store struct {
	dir     string
	records sync.Map // project id -> *record
	lock    *flock.Flock
	now     func() time.Time
	logger  *slog.Logger
}

type record struct {
	mu      sync.Mutex // guards everything below
	loaded  bool
	deleted bool
	project *Project

	// gate serializes whole stages (cache check, work, result write) for one project.
	gate sync.Mutex
}

// Open creates dir if needed and takes an exclusive lock on it.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire checkpoint lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	logger.Info("checkpoint store opened", "dir", dir)
	return &Store{
		dir:    dir,
		lock:   lock,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}, nil
}

// Close releases the directory lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string {
	return s.dir
}

// UpdateProgress creates the project if absent and overwrites its stage,
// progress, and detail. Persistence failures are logged, never returned.
func (s *Store) UpdateProgress(id string, stage Stage, current, total int, details string) {
	s.mutate(id, func(p *Project) {
		p.Stage = stage
		p.Current = current
		p.Total = total
		p.Details = details
	}, stage)
}

// SetStatus overwrites the overall project status.
func (s *Store) SetStatus(id string, status Status) {
	s.mutate(id, func(p *Project) {
		p.Status = status
	}, StageParsing)
}

// SaveStageResult inserts or overwrites the result for stage.
func (s *Store) SaveStageResult(id string, stage Stage, status ResultStatus, data Payload, errMsg string) {
	s.mutate(id, func(p *Project) {
		now := s.now()
		p.Results[stage] = StageResult{
			Stage:       stage,
			Status:      status,
			Data:        data,
			Error:       errMsg,
			CompletedAt: now,
		}
		switch {
		case status == ResultFailed:
			p.Status = StatusFailed
		case status == ResultCompleted && stage == StageRendering:
			p.Status = StatusCompleted
		}
	}, stage)
}

// GetStageResult returns the recorded result for stage, loading the
// checkpoint from disk if the project is not resident.
func (s *Store) GetStageResult(id string, stage Stage) (StageResult, bool) {
	var (
		res StageResult
		ok  bool
	)
	s.read(id, func(p *Project) {
		if p != nil {
			res, ok = p.Results[stage]
		}
	})
	return res, ok
}

// GetProjectStatus returns a snapshot of the project or the Unknown sentinel.
func (s *Store) GetProjectStatus(id string) Project {
	snapshot := Unknown(id)
	s.read(id, func(p *Project) {
		if p != nil {
			snapshot = p.clone()
		}
	})
	return snapshot
}

// DeleteProject removes the in-memory record and its checkpoint. It is idempotent.
func (s *Store) DeleteProject(id string) {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.deleted = true
	rec.project = nil

	// The record stays mapped until the file is gone so no writer can reload it.
	err := os.Remove(s.path(id))
	s.records.CompareAndDelete(id, rec)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to delete checkpoint", "project_id", id, "error", err)
		return
	}
	s.logger.Info("project deleted", "project_id", id)
}

// Exclusive blocks until the caller owns the stage gate of id and returns the release func.
func (s *Store) Exclusive(id string) func() {
	rec := s.record(id)
	rec.gate.Lock()
	return rec.gate.Unlock
}

// List returns the ids of every checkpoint on disk, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, checkpointExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, checkpointExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) record(id string) *record {
	v, _ := s.records.LoadOrStore(id, &record{})
	return v.(*record)
}

// mutate applies fn under the record lock, creating the project if needed, then persists.
func (s *Store) mutate(id string, fn func(*Project), initialStage Stage) {
	for {
		rec := s.record(id)
		rec.mu.Lock()
		if rec.deleted {
			// Lost a race with DeleteProject; the next lookup creates a fresh record.
			rec.mu.Unlock()
			continue
		}
		s.ensureLoaded(id, rec)
		if rec.project == nil {
			rec.project = newProject(id, initialStage)
		}
		fn(rec.project)
		rec.project.Timestamp = s.now()
		s.persist(rec.project)
		rec.mu.Unlock()
		return
	}
}

// read never makes an id resident unless it has a checkpoint.
func (s *Store) read(id string, fn func(*Project)) {
	for {
		v, resident := s.records.Load(id)
		if !resident {
			if !s.hasCheckpoint(id) {
				fn(nil)
				return
			}
			v, _ = s.records.LoadOrStore(id, &record{})
		}
		rec := v.(*record)
		rec.mu.Lock()
		if rec.deleted {
			rec.mu.Unlock()
			continue
		}
		s.ensureLoaded(id, rec)
		fn(rec.project)
		rec.mu.Unlock()
		return
	}
}

func (s *Store) ensureLoaded(id string, rec *record) {
	if rec.loaded {
		return
	}
	rec.project = s.load(id)
	rec.loaded = true
}

func (s *Store) hasCheckpoint(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+checkpointExt)
}

func (s *Store) load(id string) *Project {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read checkpoint", "project_id", id, "error", err)
		}
		return nil
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("failed to decode checkpoint", "project_id", id, "error", err)
		return nil
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = 1
	}
	if p.SchemaVersion > CurrentSchemaVersion {
		s.logger.Warn("checkpoint written by a newer schema; ignoring",
			"project_id", id,
			"schema_version", p.SchemaVersion,
			"supported", CurrentSchemaVersion,
		)
		return nil
	}
	if p.Results == nil {
		p.Results = map[Stage]StageResult{}
	}
	if p.ProjectID == "" {
		p.ProjectID = id
	}
	s.logger.Info("loaded checkpoint", "project_id", id, "stage", p.Stage)
	return &p
}

// persist rewrites the checkpoint atomically. Failures are logged and the
// in-memory state stays authoritative until the next successful write.
func (s *Store) persist(p *Project) {
	if err := s.writeCheckpoint(p); err != nil {
		s.logger.Warn("failed to save checkpoint", "project_id", p.ProjectID, "error", err)
	}
}

func (s *Store) writeCheckpoint(p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(p.ProjectID)); err != nil {
		cleanup()
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoints loads every checkpoint in dir without taking the directory
// lock, so it can inspect a store owned by a running server. Unreadable
// checkpoints are skipped.
func ReadCheckpoints(dir string, logger *slog.Logger) ([]Project, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger}
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(ids))
	for _, id := range ids {
		if p := s.load(id); p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
