package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Activation binds a license key to one machine. The partial unique index
// on (license_key) WHERE deactivated_at IS NULL guarantees at most one live
// row per key regardless of how many requests race.
type Activation struct {
	ID            uuid.UUID  `json:"id"`
	LicenseKey    string     `json:"license_key"`
	MachineID     string     `json:"machine_id"`
	MachineName   string     `json:"machine_name,omitempty"`
	AppVersion    string     `json:"app_version,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	ActivatedAt   time.Time  `json:"activated_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type ActivationModel struct {
	DB DBTX
}

// Insert creates a live activation. A unique violation means another request
// bound the key first; that surfaces as ErrDuplicateActivation so the caller
// can re-read the live row and branch.
func (m ActivationModel) Insert(ctx context.Context, a *Activation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO license_activations (id, license_key, machine_id, machine_name, app_version, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING activated_at, last_seen_at`

	err := m.DB.QueryRowContext(ctx, query,
		a.ID, a.LicenseKey, a.MachineID, a.MachineName, a.AppVersion, a.IPAddress,
	).Scan(&a.ActivatedAt, &a.LastSeenAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActivation
		}
		return err
	}
	return nil
}

// FindLive returns the currently bound activation for a key, if any.
func (m ActivationModel) FindLive(ctx context.Context, key string) (*Activation, error) {
	query := `
		SELECT id, license_key, machine_id, machine_name, app_version, ip_address,
		       activated_at, last_seen_at, deactivated_at
		FROM license_activations
		WHERE license_key = $1 AND deactivated_at IS NULL`

	return m.scanOne(m.DB.QueryRowContext(ctx, query, key))
}

// Find returns the live activation for an exact (key, machine) pair.
func (m ActivationModel) Find(ctx context.Context, key, machineID string) (*Activation, error) {
	query := `
		SELECT id, license_key, machine_id, machine_name, app_version, ip_address,
		       activated_at, last_seen_at, deactivated_at
		FROM license_activations
		WHERE license_key = $1 AND machine_id = $2 AND deactivated_at IS NULL`

	return m.scanOne(m.DB.QueryRowContext(ctx, query, key, machineID))
}

func (m ActivationModel) scanOne(row *sql.Row) (*Activation, error) {
	var a Activation
	var machineName, appVersion, ipAddress sql.NullString
	var deactivatedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.LicenseKey, &a.MachineID, &machineName, &appVersion, &ipAddress,
		&a.ActivatedAt, &a.LastSeenAt, &deactivatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	a.MachineName = machineName.String
	a.AppVersion = appVersion.String
	a.IPAddress = ipAddress.String
	if deactivatedAt.Valid {
		a.DeactivatedAt = &deactivatedAt.Time
	}
	return &a, nil
}

// Touch refreshes the heartbeat fields on an existing activation.
func (m ActivationModel) Touch(ctx context.Context, id uuid.UUID, ipAddress, appVersion string) error {
	query := `
		UPDATE license_activations
		SET last_seen_at = NOW(), ip_address = $1, app_version = COALESCE(NULLIF($2, ''), app_version)
		WHERE id = $3 AND deactivated_at IS NULL`

	res, err := m.DB.ExecContext(ctx, query, ipAddress, appVersion, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeactivateLive releases every live binding for a key and reports how many
// rows were cleared. Zero is not an error: reset on an unbound key is a no-op.
func (m ActivationModel) DeactivateLive(ctx context.Context, key string) (int64, error) {
	query := `
		UPDATE license_activations
		SET deactivated_at = NOW()
		WHERE license_key = $1 AND deactivated_at IS NULL`

	res, err := m.DB.ExecContext(ctx, query, key)
	if err != nil {
		return 0, err
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// DeactivateMachine releases the binding for one machine only.
func (m ActivationModel) DeactivateMachine(ctx context.Context, key, machineID string) error {
	query := `
		UPDATE license_activations
		SET deactivated_at = NOW()
		WHERE license_key = $1 AND machine_id = $2 AND deactivated_at IS NULL`

	res, err := m.DB.ExecContext(ctx, query, key, machineID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// EarliestActivatedAt returns the first activation time still tracked for a
// key, live or not. Admin duration changes anchor the new expiry here.
func (m ActivationModel) EarliestActivatedAt(ctx context.Context, key string) (*time.Time, error) {
	query := `SELECT MIN(activated_at) FROM license_activations WHERE license_key = $1`

	var earliest sql.NullTime
	if err := m.DB.QueryRowContext(ctx, query, key).Scan(&earliest); err != nil {
		return nil, err
	}
	if !earliest.Valid {
		return nil, nil
	}
	return &earliest.Time, nil
}

// CountLive reports the number of live bindings across all keys, sampled by
// the metrics collector.
func (m ActivationModel) CountLive(ctx context.Context) (int, error) {
	var count int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM license_activations WHERE deactivated_at IS NULL`,
	).Scan(&count)
	return count, err
}
