package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Service writes and queries the append-only license audit log. Writes that
// fail against the database are spooled to disk and replayed later, so an
// outage never silently drops an entry.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}

	if err := s.insert(ctx, e); err != nil {
		log.Printf("Audit DB write failed: %v. Spooling entry %s", err, e.EventID)
		if spoolErr := SpoolEntry(e); spoolErr != nil {
			log.Printf("CRITICAL: audit spool failed for entry %s: %v", e.EventID, spoolErr)
			return fmt.Errorf("audit write and spool failed: %w", spoolErr)
		}
	}
	return nil
}

// insert commits one entry. Replaying an already-committed event_id is a
// no-op.
func (s *Service) insert(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO license_audit_log (event_id, action, license_key, machine_id, ip_address, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`

	var machineID sql.NullString
	if e.MachineID != "" {
		machineID = sql.NullString{String: e.MachineID, Valid: true}
	}

	details := e.Details
	if len(details) == 0 {
		details = []byte("{}")
	}

	_, err := s.DB.ExecContext(ctx, query,
		e.EventID, e.Action, e.LicenseKey, machineID, e.IPAddress, []byte(details),
	)
	return err
}

// Append-only: no update or delete methods are exposed. The only removal
// path is the cascading admin key delete, which runs through the store.

// List returns entries newest first, optionally narrowed by key and action.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, event_id, action, license_key, machine_id, ip_address, details, created_at
		FROM license_audit_log
		WHERE true`
	args := []any{}
	idx := 1

	if f.LicenseKey != "" {
		query += fmt.Sprintf(" AND license_key = $%d", idx)
		args = append(args, f.LicenseKey)
		idx++
	}
	if f.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, f.Action)
		idx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var machineID, ipAddress sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.Action, &e.LicenseKey, &machineID, &ipAddress, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.MachineID = machineID.String
		e.IPAddress = ipAddress.String
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
