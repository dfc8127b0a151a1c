package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNoTime returns nil for a nil time, otherwise the UTC value.
func nilIfNoTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// rebindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask scans a task row selected with taskColumns.
func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var status string
	var notes, placeID, insightID sql.NullString
	var due sql.NullTime
	if err := row.Scan(&t.ID, &t.Title, &status, &due, &notes, &placeID, &insightID, &t.CreatedAt); err != nil {
		return t, err
	}
	t.Status = models.TaskStatus(status)
	t.Notes = notes.String
	t.LinkedPlaceID = placeID.String
	t.LinkedInsightID = insightID.String
	if due.Valid {
		d := due.Time
		t.Due = &d
	}
	return t, nil
}

// scanCallScript scans a call script row selected with scriptColumns.
func scanCallScript(row rowScanner) (models.CallScript, error) {
	var cs models.CallScript
	var phone sql.NullString
	if err := row.Scan(&cs.ID, &cs.OwnerID, &cs.ClinicName, &phone, &cs.ScriptText, &cs.Status, &cs.ApprovedAt); err != nil {
		return cs, fmt.Errorf("scan call script failed: %w", err)
	}
	cs.ClinicPhone = phone.String
	return cs, nil
}
