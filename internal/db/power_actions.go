// ABOUTME: Power action audit log database operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PowerActionRecord is one audited power dispatch.
type PowerActionRecord struct {
	ID            int64
	Timestamp     time.Time
	ServerID      int
	Action        string
	Result        string
	Message       string
	CorrelationID string
}

// Audit result labels.
const (
	PowerResultSuccess = "success"
	PowerResultQueued  = "queued"
	PowerResultFailed  = "failed"
	PowerResultError   = "error"
)

// RecordPowerAction appends one audit record.
func (s *Store) RecordPowerAction(ctx context.Context, record PowerActionRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if record.ServerID <= 0 {
		return errors.New("server id must be positive")
	}
	if record.Action == "" {
		return errors.New("action is required")
	}
	if record.Result == "" {
		return errors.New("result is required")
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO power_actions (ts, server_id, action, result, message, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ts),
		record.ServerID,
		record.Action,
		record.Result,
		record.Message,
		record.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("record power action for server %d: %w", record.ServerID, err)
	}
	return nil
}

// ListPowerActions returns the most recent audit records for a server,
// newest first.
func (s *Store) ListPowerActions(ctx context.Context, serverID, limit int) ([]PowerActionRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	if serverID <= 0 {
		return nil, errors.New("server id must be positive")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, ts, server_id, action, result, message, correlation_id
		FROM power_actions WHERE server_id = ? ORDER BY id DESC LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list power actions for server %d: %w", serverID, err)
	}
	defer rows.Close()

	var records []PowerActionRecord
	for rows.Next() {
		var record PowerActionRecord
		var ts string
		if err := rows.Scan(&record.ID, &ts, &record.ServerID, &record.Action, &record.Result, &record.Message, &record.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan power action: %w", err)
		}
		if record.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate power actions: %w", err)
	}
	return records, nil
}
