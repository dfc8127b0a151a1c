package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

const (
	taskColumns   = `id, title, status, due, notes, linked_place_id, linked_insight_id, created_at`
	scriptColumns = `id, owner_id, clinic_name, clinic_phone, script_text, status, approved_at`
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores. Queries are
// written with ? placeholders and passed through bind.
type sqlStore struct {
	db   *sql.DB
	name string
	bind func(string) string
}

func (s *sqlStore) q(query string) string {
	if s.bind == nil {
		return query
	}
	return s.bind(query)
}

func (s *sqlStore) SaveSnapshot(sessionID string, snap models.EpisodeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(s.q(`INSERT INTO episode_snapshots (session_id, snapshot_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET snapshot_json = excluded.snapshot_json, updated_at = excluded.updated_at`),
		sessionID, string(data), snap.UpdatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveSnapshot failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save snapshot for %s: %w", sessionID, err)
	}
	slog.Debug(s.name+" SaveSnapshot succeeded", "sessionID", sessionID, "messages", len(snap.Messages))
	return nil
}

func (s *sqlStore) GetSnapshot(sessionID string) (*models.EpisodeSnapshot, error) {
	var data string
	err := s.db.QueryRow(s.q(`SELECT snapshot_json FROM episode_snapshots WHERE session_id = ?`), sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetSnapshot failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get snapshot for %s: %w", sessionID, err)
	}
	var snap models.EpisodeSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *sqlStore) DeleteSnapshot(sessionID string) error {
	if _, err := s.db.Exec(s.q(`DELETE FROM episode_snapshots WHERE session_id = ?`), sessionID); err != nil {
		slog.Error(s.name+" DeleteSnapshot failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete snapshot for %s: %w", sessionID, err)
	}
	return nil
}

func (s *sqlStore) SaveTask(sessionID string, t models.Task) error {
	_, err := s.db.Exec(s.q(`INSERT INTO tasks (session_id, `+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, id) DO UPDATE SET title = excluded.title, status = excluded.status, due = excluded.due,
		notes = excluded.notes, linked_place_id = excluded.linked_place_id, linked_insight_id = excluded.linked_insight_id`),
		sessionID, t.ID, t.Title, string(t.Status), nilIfNoTime(t.Due), nilIfEmpty(t.Notes),
		nilIfEmpty(t.LinkedPlaceID), nilIfEmpty(t.LinkedInsightID), t.CreatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveTask failed", "error", err, "sessionID", sessionID, "taskID", t.ID)
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	slog.Debug(s.name+" SaveTask succeeded", "sessionID", sessionID, "taskID", t.ID)
	return nil
}

func (s *sqlStore) GetTask(sessionID, id string) (*models.Task, error) {
	row := s.db.QueryRow(s.q(`SELECT `+taskColumns+` FROM tasks WHERE session_id = ? AND id = ?`), sessionID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *sqlStore) ListTasks(sessionID string) ([]models.Task, error) {
	rows, err := s.db.Query(s.q(`SELECT `+taskColumns+` FROM tasks WHERE session_id = ? ORDER BY created_at, id`), sessionID)
	if err != nil {
		slog.Error(s.name+" ListTasks query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

func (s *sqlStore) DeleteTask(sessionID, id string) error {
	res, err := s.db.Exec(s.q(`DELETE FROM tasks WHERE session_id = ? AND id = ?`), sessionID, id)
	if err != nil {
		slog.Error(s.name+" DeleteTask failed", "error", err, "sessionID", sessionID, "taskID", id)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) DeleteTasks(sessionID string) error {
	if _, err := s.db.Exec(s.q(`DELETE FROM tasks WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("failed to delete tasks for %s: %w", sessionID, err)
	}
	return nil
}

func (s *sqlStore) SaveCallScript(cs models.CallScript, consent models.ConsentRecord) error {
	if cs.ID == "" || consent.ScriptID != cs.ID {
		return errors.New("consent record must reference the call script")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.q(`INSERT INTO call_scripts (`+scriptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		cs.ID, cs.OwnerID, cs.ClinicName, nilIfEmpty(cs.ClinicPhone), cs.ScriptText, cs.Status, cs.ApprovedAt.UTC()); err != nil {
		slog.Error(s.name+" SaveCallScript insert script failed", "error", err, "scriptID", cs.ID)
		return fmt.Errorf("failed to insert call script %s: %w", cs.ID, err)
	}
	if _, err := tx.Exec(s.q(`INSERT INTO consent_records (script_id, type, text, created_at) VALUES (?, ?, ?, ?)`),
		consent.ScriptID, consent.Type, consent.Text, consent.CreatedAt.UTC()); err != nil {
		slog.Error(s.name+" SaveCallScript insert consent failed", "error", err, "scriptID", cs.ID)
		return fmt.Errorf("failed to insert consent for %s: %w", cs.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit call script %s: %w", cs.ID, err)
	}
	slog.Debug(s.name+" SaveCallScript succeeded", "scriptID", cs.ID, "ownerID", cs.OwnerID)
	return nil
}

func (s *sqlStore) GetCallScript(id string) (*models.CallScript, error) {
	cs, err := scanCallScript(s.db.QueryRow(s.q(`SELECT `+scriptColumns+` FROM call_scripts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *sqlStore) ListCallScripts(ownerID string) ([]models.CallScript, error) {
	rows, err := s.db.Query(s.q(`SELECT `+scriptColumns+` FROM call_scripts WHERE owner_id = ? ORDER BY approved_at`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query call scripts: %w", err)
	}
	defer rows.Close()

	var out []models.CallScript
	for rows.Next() {
		cs, err := scanCallScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetConsent(scriptID string) (*models.ConsentRecord, error) {
	var c models.ConsentRecord
	err := s.db.QueryRow(s.q(`SELECT script_id, type, text, created_at FROM consent_records WHERE script_id = ?`), scriptID).
		Scan(&c.ScriptID, &c.Type, &c.Text, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent for %s: %w", scriptID, err)
	}
	return &c, nil
}

func (s *sqlStore) Close() error {
	slog.Debug(s.name + " closing database connection")
	return s.db.Close()
}
