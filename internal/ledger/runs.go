package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = "id, experiment, partition, model, state, start_iteration, iterations, final_loss, elapsed_seconds, error_message, started_at, finished_at"

// StartRun records a new run in the running state. An empty ID is replaced by
// a random UUID and a zero StartedAt by the current time.
func (s *Store) StartRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.State = StateRunning
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, experiment, partition, model, state, start_iteration, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Experiment, run.Partition, run.Model, string(run.State), run.StartIteration, formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, id string, result RunResult) error {
	if !result.State.Terminal() {
		return fmt.Errorf("finish run %s: state %q is not terminal", id, result.State)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, iterations = ?, final_loss = ?, elapsed_seconds = ?, error_message = ?, finished_at = ?
         WHERE id = ?`,
		string(result.State), result.Iterations, nullableFloat(result.FinalLoss), result.Elapsed.Seconds(),
		nullableString(result.ErrorMessage), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// MarkInterrupted moves every running run to interrupted and returns how many
// rows changed. Callers must hold the experiment lock.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, finished_at = ?, error_message = COALESCE(error_message, ?) WHERE state = ?`,
		string(StateInterrupted), formatTime(time.Now()), "process exited before recording a terminal state", string(StateRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// LatestRun returns the most recently started run, or nil when none exists.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// Runs returns every run in start order.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		state       string
		finalLoss   sql.NullFloat64
		elapsed     float64
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Experiment,
		&run.Partition,
		&run.Model,
		&state,
		&run.StartIteration,
		&run.Iterations,
		&finalLoss,
		&elapsed,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.State = RunState(state)
	run.FinalLoss = floatPtr(finalLoss)
	run.Elapsed = time.Duration(elapsed * float64(time.Second))
	run.ErrorMessage = errorMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}
