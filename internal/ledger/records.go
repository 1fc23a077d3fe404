package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordSnapshot records or replaces the snapshot for an epoch.
func (s *Store) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO snapshots (epoch, run_id, path, train_loss, created_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(epoch) DO UPDATE SET run_id = excluded.run_id, path = excluded.path,
             train_loss = excluded.train_loss, created_at = excluded.created_at`,
		snap.Epoch, snap.RunID, snap.Path, nullableFloat(snap.TrainLoss), formatTime(snap.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record snapshot %d: %w", snap.Epoch, err)
	}
	return nil
}

// Snapshots returns every recorded snapshot ordered by epoch.
func (s *Store) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT epoch, run_id, path, train_loss, created_at FROM snapshots ORDER BY epoch`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap       Snapshot
			loss       sql.NullFloat64
			createdRaw string
		)
		if err := rows.Scan(&snap.Epoch, &snap.RunID, &snap.Path, &loss, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.TrainLoss = floatPtr(loss)
		snap.CreatedAt, _ = parseTimeString(createdRaw)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// RecordSelection appends a model selection result.
func (s *Store) RecordSelection(ctx context.Context, sel Selection) (Selection, error) {
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO selections (epoch, criterion, validation_loss, validation_accuracy, candidates, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sel.Epoch, sel.Criterion, sel.ValidationLoss, sel.ValidationAccuracy, sel.Candidates, formatTime(sel.CreatedAt),
	)
	if err != nil {
		return Selection{}, fmt.Errorf("record selection: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		sel.ID = id
	}
	return sel, nil
}

// BestEpoch returns the most recent selection. ok is false when model
// selection has never run.
func (s *Store) BestEpoch(ctx context.Context) (sel Selection, ok bool, err error) {
	var createdRaw string
	err = s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, epoch, criterion, validation_loss, validation_accuracy, candidates, created_at
         FROM selections ORDER BY id DESC LIMIT 1`,
	).Scan(&sel.ID, &sel.Epoch, &sel.Criterion, &sel.ValidationLoss, &sel.ValidationAccuracy, &sel.Candidates, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Selection{}, false, nil
	}
	if err != nil {
		return Selection{}, false, fmt.Errorf("best epoch: %w", err)
	}
	sel.CreatedAt, _ = parseTimeString(createdRaw)
	return sel, true, nil
}

// RecordArtifact records or replaces an artifact entry.
func (s *Store) RecordArtifact(ctx context.Context, art Artifact) error {
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO artifacts (kind, snapshot_id, path, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(kind, snapshot_id) DO UPDATE SET path = excluded.path, created_at = excluded.created_at`,
		art.Kind, art.SnapshotID, art.Path, formatTime(art.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record %s artifact %s: %w", art.Kind, art.SnapshotID, err)
	}
	return nil
}

// Artifacts returns every recorded artifact ordered by kind and snapshot id.
func (s *Store) Artifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT kind, snapshot_id, path, created_at FROM artifacts ORDER BY kind, snapshot_id`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			art        Artifact
			createdRaw string
		)
		if err := rows.Scan(&art.Kind, &art.SnapshotID, &art.Path, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		art.CreatedAt, _ = parseTimeString(createdRaw)
		out = append(out, art)
	}
	return out, rows.Err()
}
