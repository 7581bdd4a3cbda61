package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-lms/internal/keycodec"
)

// Store bundles the models over one connection pool and owns the operations
// that need a transaction.
type Store struct {
	db          *sql.DB
	Keys        LicenseKeyModel
	Activations ActivationModel
	AdminUsers  AdminUserModel
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Keys:        LicenseKeyModel{DB: db},
		Activations: ActivationModel{DB: db},
		AdminUsers:  AdminUserModel{DB: db},
	}
}

// Facade methods so the store satisfies the activation and admin service
// repositories without each service knowing the model split.

func (s *Store) FindKey(ctx context.Context, key string) (*LicenseKey, error) {
	return s.Keys.Get(ctx, key)
}

func (s *Store) InsertKey(ctx context.Context, k *LicenseKey) error {
	return s.Keys.Insert(ctx, k)
}

func (s *Store) UpdateKeyStatus(ctx context.Context, key string, to Status) error {
	return s.Keys.UpdateStatus(ctx, key, to, false)
}

func (s *Store) UpdateKeyStatusAdmin(ctx context.Context, key string, to Status) error {
	return s.Keys.UpdateStatus(ctx, key, to, true)
}

func (s *Store) ListKeys(ctx context.Context, filter KeyFilter, limit, offset int) ([]*KeySummary, error) {
	return s.Keys.List(ctx, filter, limit, offset)
}

func (s *Store) UpdateKeyPlan(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
	return s.Keys.UpdatePlan(ctx, key, tier, durationDays, maxActivations, expiresAt)
}

func (s *Store) FindLiveActivation(ctx context.Context, key string) (*Activation, error) {
	return s.Activations.FindLive(ctx, key)
}

func (s *Store) FindActivation(ctx context.Context, key, machineID string) (*Activation, error) {
	return s.Activations.Find(ctx, key, machineID)
}

func (s *Store) InsertActivation(ctx context.Context, a *Activation) error {
	return s.Activations.Insert(ctx, a)
}

func (s *Store) TouchActivation(ctx context.Context, id uuid.UUID, ipAddress, appVersion string) error {
	return s.Activations.Touch(ctx, id, ipAddress, appVersion)
}

func (s *Store) DeactivateLive(ctx context.Context, key string) (int64, error) {
	return s.Activations.DeactivateLive(ctx, key)
}

func (s *Store) DeactivateMachine(ctx context.Context, key, machineID string) error {
	return s.Activations.DeactivateMachine(ctx, key, machineID)
}

func (s *Store) EarliestActivatedAt(ctx context.Context, key string) (*time.Time, error) {
	return s.Activations.EarliestActivatedAt(ctx, key)
}

// DeleteKeyCascade removes a key with its activations and audit trail in one
// transaction. Deleting an already-deleted key is a not-found condition.
func (s *Store) DeleteKeyCascade(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM license_audit_log WHERE license_key = $1`, key); err != nil {
		return fmt.Errorf("delete audit entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM license_activations WHERE license_key = $1`, key); err != nil {
		return fmt.Errorf("delete activations: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM license_keys WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}

	return tx.Commit()
}
