// Package archive stores generated samples and received actuator commands
// in SQLite for later inspection.
//
// The archive is a recorder collaborator: the sampler hands it every
// enqueued sample and the simulator every command an actuator receives.
// Nothing in the sampling or control path reads it back; the simulator
// queries it only for RecentSamples, RecentCommands and its shutdown summary.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/fieldsim/internal/resource"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Limits for list queries.
const (
	defaultLimit = 50
	maxLimit     = 1000
)

// CommandRecord is one command received by a simulated actuator.
type CommandRecord struct {
	ActuatorID    string
	ContainerPath string
	Command       resource.Command
	ReceivedAt    time.Time
}

// SampleFilter controls which samples List returns.
type SampleFilter struct {
	SensorID string // optional
	Type     string // optional
	Limit    int    // default 50, max 1000
}

// SampleRepository defines the sample archive operations.
type SampleRepository interface {
	resource.Recorder
	List(ctx context.Context, filter SampleFilter) ([]resource.Sample, error)
	Count(ctx context.Context) (int, error)
}

// CommandRepository defines the command log operations.
type CommandRepository interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
	ListCommands(ctx context.Context, actuatorID string, limit int) ([]CommandRecord, error)
}

// SQLiteRepository implements both repositories on the migrated schema.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ SampleRepository  = (*SQLiteRepository)(nil)
	_ CommandRepository = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository creates a repository. The schema must already be
// migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a sample. A zero timestamp is set to now.
func (r *SQLiteRepository) Record(ctx context.Context, s resource.Sample) error {
	if s.At.IsZero() {
		s.At = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO samples (sensor_id, profile, type, value, unit, container_path, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SensorID, s.Profile, s.Type, s.Value, s.Unit, s.ContainerPath,
		s.At.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	return nil
}

// List returns samples matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter SampleFilter) ([]resource.Sample, error) {
	var conditions []string
	var args []any
	if filter.SensorID != "" {
		conditions = append(conditions, "sensor_id = ?")
		args = append(args, filter.SensorID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT sensor_id, profile, type, value, unit, container_path, recorded_at FROM samples %s ORDER BY recorded_at DESC, id DESC LIMIT ?",
		where,
	)
	args = append(args, clampLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	samples := []resource.Sample{}
	for rows.Next() {
		var s resource.Sample
		var recordedAt string
		if err := rows.Scan(&s.SensorID, &s.Profile, &s.Type, &s.Value, &s.Unit, &s.ContainerPath, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		if s.At, err = time.Parse(timeFormat, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing sample timestamp %q: %w", recordedAt, err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return samples, nil
}

// Count returns the number of archived samples.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return n, nil
}

// RecordCommand logs a received command with its directives as JSON.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, rec CommandRecord) error {
	directives, err := rec.Command.Encode()
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO actuator_commands (actuator_id, container_path, directives, received_at)
		 VALUES (?, ?, ?, ?)`,
		rec.ActuatorID, rec.ContainerPath, string(directives),
		rec.ReceivedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// ListCommands returns an actuator's commands, newest first.
func (r *SQLiteRepository) ListCommands(ctx context.Context, actuatorID string, limit int) ([]CommandRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT actuator_id, container_path, directives, received_at FROM actuator_commands
		 WHERE actuator_id = ? ORDER BY received_at DESC, id DESC LIMIT ?`,
		actuatorID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		var directives, receivedAt string
		if err := rows.Scan(&rec.ActuatorID, &rec.ContainerPath, &directives, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		if rec.Command, err = resource.DecodeCommand([]byte(directives)); err != nil {
			return nil, fmt.Errorf("decoding command directives: %w", err)
		}
		if rec.ReceivedAt, err = time.Parse(timeFormat, receivedAt); err != nil {
			return nil, fmt.Errorf("parsing command timestamp %q: %w", receivedAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
