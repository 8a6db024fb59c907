// Package mapdb persists map snapshots and exploration statistics to a
// local SQLite database.
package mapdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/saliency.world/internal/monitoring"
)

type MapDB struct {
	*sql.DB
}

// schema.sql defines the snapshot and exploration-sample tables.
//
//go:embed schema.sql
var schemaSQL string

func NewMapDB(path string) (*MapDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, err
	}

	monitoring.Logf("initialized map database schema at %s", path)
	return &MapDB{db}, nil
}

// SnapshotMeta describes one stored snapshot without its blob.
type SnapshotMeta struct {
	ID               string
	Label            string
	Resolution       float64
	VoxelCount       int
	ExploredFraction float64
	CreatedAt        time.Time
}

// InsertSnapshot stores a compressed map snapshot and returns its id.
func (db *MapDB) InsertSnapshot(label string, resolution float64, voxelCount int, exploredFraction float64, blob []byte) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO map_snapshots (id, label, resolution, voxel_count, explored_fraction, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, label, resolution, voxelCount, exploredFraction, blob)
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return id, nil
}

// GetSnapshot returns the snapshot blob for the given id.
func (db *MapDB) GetSnapshot(id string) ([]byte, error) {
	var blob []byte
	err := db.QueryRow(`SELECT snapshot FROM map_snapshots WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return blob, nil
}

// LatestSnapshot returns the most recently stored snapshot and its id.
func (db *MapDB) LatestSnapshot() (string, []byte, error) {
	var id string
	var blob []byte
	err := db.QueryRow(`
		SELECT id, snapshot FROM map_snapshots
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`).Scan(&id, &blob)
	if err == sql.ErrNoRows {
		return "", nil, fmt.Errorf("no snapshots stored")
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	return id, blob, nil
}

// ListSnapshots returns metadata for all stored snapshots, newest first.
func (db *MapDB) ListSnapshots() ([]SnapshotMeta, error) {
	rows, err := db.Query(`
		SELECT id, label, resolution, voxel_count, explored_fraction, created_at
		FROM map_snapshots
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		if err := rows.Scan(&m.ID, &m.Label, &m.Resolution, &m.VoxelCount, &m.ExploredFraction, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// DeleteSnapshot removes a stored snapshot.
func (db *MapDB) DeleteSnapshot(id string) error {
	res, err := db.Exec(`DELETE FROM map_snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s not found", id)
	}
	return nil
}

// RecordExplorationSample appends one explored-fraction measurement.
func (db *MapDB) RecordExplorationSample(fraction, rate, elapsed float64, voxelCount int) error {
	_, err := db.Exec(`
		INSERT INTO exploration_samples (explored_fraction, exploration_rate, elapsed_seconds, voxel_count)
		VALUES (?, ?, ?, ?)
	`, fraction, rate, elapsed, voxelCount)
	if err != nil {
		return fmt.Errorf("failed to insert exploration sample: %w", err)
	}
	return nil
}

// ExplorationSample is one stored explored-fraction measurement.
type ExplorationSample struct {
	ExploredFraction float64
	ExplorationRate  float64
	ElapsedSeconds   float64
	VoxelCount       int
	CreatedAt        time.Time
}

// RecentExplorationSamples returns up to limit samples, newest first.
func (db *MapDB) RecentExplorationSamples(limit int) ([]ExplorationSample, error) {
	rows, err := db.Query(`
		SELECT explored_fraction, exploration_rate, elapsed_seconds, voxel_count, created_at
		FROM exploration_samples
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exploration samples: %w", err)
	}
	defer rows.Close()

	var samples []ExplorationSample
	for rows.Next() {
		var s ExplorationSample
		if err := rows.Scan(&s.ExploredFraction, &s.ExplorationRate, &s.ElapsedSeconds, &s.VoxelCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
