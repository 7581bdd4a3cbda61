package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/technosupport/ts-lms/internal/keycodec"
)

// LicenseKey is the persisted record for an issued key.
type LicenseKey struct {
	Key            string        `json:"key"`
	Tier           keycodec.Tier `json:"tier"`
	Status         Status        `json:"status"`
	DurationDays   int           `json:"duration_days"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	MaxActivations int           `json:"max_activations"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// KeySummary is a LicenseKey enriched with derived activation facts for the
// admin listing.
type KeySummary struct {
	LicenseKey
	ActivationCount int    `json:"activation_count"`
	LastMachine     string `json:"last_machine,omitempty"`
}

type LicenseKeyModel struct {
	DB DBTX
}

func (m LicenseKeyModel) Insert(ctx context.Context, k *LicenseKey) error {
	query := `
		INSERT INTO license_keys (key, tier, status, duration_days, expires_at, max_activations, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	var expiresAt sql.NullTime
	if k.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *k.ExpiresAt, Valid: true}
	}

	return m.DB.QueryRowContext(ctx, query,
		k.Key, k.Tier, k.Status, k.DurationDays, expiresAt, k.MaxActivations, k.Notes,
	).Scan(&k.CreatedAt)
}

func (m LicenseKeyModel) Get(ctx context.Context, key string) (*LicenseKey, error) {
	query := `
		SELECT key, tier, status, duration_days, expires_at, max_activations, notes, created_at
		FROM license_keys
		WHERE key = $1`

	var k LicenseKey
	var expiresAt sql.NullTime
	var notes sql.NullString

	err := m.DB.QueryRowContext(ctx, query, key).Scan(
		&k.Key, &k.Tier, &k.Status, &k.DurationDays, &expiresAt, &k.MaxActivations, &notes, &k.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if notes.Valid {
		k.Notes = notes.String
	}
	return &k, nil
}

// UpdateStatus performs a transition-guarded status change. The allowed
// source statuses are folded into the WHERE clause so concurrent writers
// cannot slip an illegal transition through between read and write.
func (m LicenseKeyModel) UpdateStatus(ctx context.Context, key string, to Status, admin bool) error {
	froms := allowedFrom(to, admin)
	if len(froms) == 0 {
		return ErrInvalidTransition
	}

	query := `
		UPDATE license_keys
		SET status = $1
		WHERE key = $2 AND status = ANY($3)`

	res, err := m.DB.ExecContext(ctx, query, to, key, pq.Array(froms))
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Distinguish missing key from illegal transition.
		if _, err := m.Get(ctx, key); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// UpdatePlan changes tier, duration and activation capacity in one shot and
// stores the recomputed expiry (nil clears it for lifetime keys).
func (m LicenseKeyModel) UpdatePlan(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
	query := `
		UPDATE license_keys
		SET tier = $1, duration_days = $2, max_activations = $3, expires_at = $4
		WHERE key = $5`

	var exp sql.NullTime
	if expiresAt != nil {
		exp = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	res, err := m.DB.ExecContext(ctx, query, tier, durationDays, maxActivations, exp, key)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// KeyFilter parameters for the admin listing.
type KeyFilter struct {
	Tier   keycodec.Tier
	Status Status
}

// List returns keys newest first, each with its activation count and the
// machine bound by the most recent activation.
func (m LicenseKeyModel) List(ctx context.Context, filter KeyFilter, limit, offset int) ([]*KeySummary, error) {
	where := "WHERE true"
	args := []any{}
	nextArg := 1

	if filter.Tier != "" {
		where += fmt.Sprintf(" AND k.tier = $%d", nextArg)
		args = append(args, filter.Tier)
		nextArg++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND k.status = $%d", nextArg)
		args = append(args, filter.Status)
		nextArg++
	}

	query := fmt.Sprintf(`
		SELECT k.key, k.tier, k.status, k.duration_days, k.expires_at, k.max_activations, k.notes, k.created_at,
		       (SELECT count(*) FROM license_activations a WHERE a.license_key = k.key) AS activation_count,
		       COALESCE((SELECT a.machine_id FROM license_activations a
		                 WHERE a.license_key = k.key
		                 ORDER BY a.activated_at DESC LIMIT 1), '') AS last_machine
		FROM license_keys k
		%s
		ORDER BY k.created_at DESC
		LIMIT $%d OFFSET $%d`, where, nextArg, nextArg+1)

	args = append(args, limit, offset)

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*KeySummary
	for rows.Next() {
		var s KeySummary
		var expiresAt sql.NullTime
		var notes sql.NullString
		if err := rows.Scan(
			&s.Key, &s.Tier, &s.Status, &s.DurationDays, &expiresAt, &s.MaxActivations, &notes, &s.CreatedAt,
			&s.ActivationCount, &s.LastMachine,
		); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			s.ExpiresAt = &expiresAt.Time
		}
		if notes.Valid {
			s.Notes = notes.String
		}
		keys = append(keys, &s)
	}
	return keys, rows.Err()
}
