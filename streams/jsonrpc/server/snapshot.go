package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/defistate/converter-registry-go/registry"
)

// SnapshotFile is the on-disk layout of a persisted registry snapshot.
type SnapshotFile struct {
	ID      string          `json:"id"`
	SavedAt int64           `json:"savedAt"`
	State   *registry.State `json:"state"`
}

// SnapshotterConfig holds the configuration for the Snapshotter.
type SnapshotterConfig struct {
	System   *registry.System
	Logger   Logger
	Path     string
	Interval time.Duration
}

// validate checks if the configuration is valid.
func (c *SnapshotterConfig) validate() error {
	if c.System == nil {
		return errors.New("config: System cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Path == "" {
		return errors.New("config: Path is required")
	}
	if c.Interval <= 0 {
		return errors.New("config: Interval must be greater than 0")
	}
	return nil
}

// snapshotKey identifies a persisted state so unchanged ticks skip the write.
// Ownership proposals emit no event, so the Snapshotter polls instead of
// following the update feeds; PendingOwner changes are caught on the next tick.
type snapshotKey struct {
	version uint64
	owner   common.Address
	pending common.Address
}

// Snapshotter periodically persists the registry state to a JSON file so a
// restarted server can resume from where it left off. Writes go through a
// temp file and a rename, so the file at Path is always a complete snapshot.
type Snapshotter struct {
	system   *registry.System
	logger   Logger
	path     string
	interval time.Duration

	last   snapshotKey
	sealed bool
}

// NewSnapshotter constructs a Snapshotter from a configuration, returning an
// error if the config is invalid.
func NewSnapshotter(cfg SnapshotterConfig) (*Snapshotter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Snapshotter{
		system:   cfg.System,
		logger:   cfg.Logger,
		path:     cfg.Path,
		interval: cfg.Interval,
	}, nil
}

// Run persists the state on every interval tick until ctx is cancelled,
// writing one final snapshot on the way out. It returns ctx.Err().
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				s.logger.Error("failed to persist snapshot", "path", s.path, "error", err)
			}
		case <-ctx.Done():
			if err := s.Persist(); err != nil {
				s.logger.Error("failed to persist final snapshot", "path", s.path, "error", err)
			}
			return ctx.Err()
		}
	}
}

// Persist writes the current state to the snapshot path. It is a no-op when
// nothing changed since the last write.
func (s *Snapshotter) Persist() error {
	state := s.system.Snapshot()
	key := snapshotKey{
		version: state.Registry.Version,
		owner:   state.Owner,
		pending: state.PendingOwner,
	}
	if s.sealed && key == s.last {
		return nil
	}

	file := &SnapshotFile{
		ID:      uuid.New().String(),
		SavedAt: time.Now().UnixNano(),
		State:   state,
	}
	if err := writeFileAtomic(s.path, file); err != nil {
		return err
	}

	s.last = key
	s.sealed = true
	s.logger.Debug("snapshot persisted",
		"path", s.path, "id", file.ID, "version", key.version)
	return nil
}

func writeFileAtomic(path string, file *SnapshotFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// LoadState reads a snapshot file written by the Snapshotter and returns the
// state it carries.
func LoadState(path string) (*registry.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var file SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot file: %w", err)
	}
	if file.State == nil || file.State.Registry == nil {
		return nil, errors.New("snapshot file carries no state")
	}

	return file.State, nil
}
