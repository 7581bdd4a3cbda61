package admin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

const testKey = "AB12-CD34-PDAQ-1A2B"

func testService(repo *MockRepo) (*Service, *MockAuditor) {
	aud := &MockAuditor{}
	return NewService(repo, aud, &MockMinter{}, nil), aud
}

func usedKey() *data.LicenseKey {
	return &data.LicenseKey{
		Key:            testKey,
		Tier:           keycodec.TierPro,
		Status:         data.StatusUsed,
		DurationDays:   30,
		MaxActivations: 1,
	}
}

// 1. Generate mints the requested batch
func TestGenerateKeys(t *testing.T) {
	var inserted []*data.LicenseKey
	repo := &MockRepo{
		InsertKeyFunc: func(ctx context.Context, k *data.LicenseKey) error {
			inserted = append(inserted, k)
			return nil
		},
	}
	svc, _ := testService(repo)

	keys, err := svc.GenerateKeys(context.Background(), GenerateRequest{
		Tier:         keycodec.TierEnterprise,
		Count:        5,
		DurationDays: 100, // floors to 90
	})
	if err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	if len(keys) != 5 || len(inserted) != 5 {
		t.Fatalf("Expected 5 keys, got %d returned / %d inserted", len(keys), len(inserted))
	}
	for _, k := range keys {
		if k.Status != data.StatusActive || k.DurationDays != 90 || k.MaxActivations != 1 {
			t.Errorf("Unexpected key record: %+v", k)
		}
	}
}

// 2. Generate bounds the batch size
func TestGenerateKeys_CountBounds(t *testing.T) {
	svc, _ := testService(&MockRepo{})

	for _, count := range []int{0, -1, 1001} {
		if _, err := svc.GenerateKeys(context.Background(), GenerateRequest{Tier: keycodec.TierPro, Count: count}); !errors.Is(err, ErrBadRequest) {
			t.Errorf("Count %d should be rejected, got %v", count, err)
		}
	}
}

// 3. Revoke records the prior status and reason
func TestManageKey_Revoke(t *testing.T) {
	var to data.Status
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		UpdateKeyStatusAdminFunc: func(ctx context.Context, key string, s data.Status) error {
			to = s
			return nil
		},
	}
	svc, aud := testService(repo)

	msg, err := svc.ManageKey(context.Background(), testKey, "revoke", ManagePayload{Reason: "chargeback"}, "198.51.100.7")
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if to != data.StatusRevoked {
		t.Errorf("Status set to %q, want revoked", to)
	}
	if msg == "" {
		t.Error("Expected a result message")
	}

	if len(aud.Entries) != 1 || aud.Entries[0].Action != audit.ActionAdminRevoke {
		t.Fatalf("Expected admin_revoke audit entry, got %+v", aud.Entries)
	}
	var details audit.RevokeDetails
	json.Unmarshal(aud.Entries[0].Details, &details)
	if details.PriorStatus != "used" || details.Reason != "chargeback" {
		t.Errorf("Revoke details wrong: %+v", details)
	}
}

// 4. Admin activate undoes a revoke and logs a reactivate
func TestManageKey_Reactivate(t *testing.T) {
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			lk := usedKey()
			lk.Status = data.StatusRevoked
			return lk, nil
		},
	}
	svc, aud := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "activate", ManagePayload{}, ""); err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if len(aud.Entries) != 1 || aud.Entries[0].Action != audit.ActionReactivate {
		t.Errorf("Expected reactivate audit entry, got %+v", aud.Entries)
	}
}

// 5. Reset clears bindings and reports the count
func TestManageKey_Reset(t *testing.T) {
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		DeactivateLiveFunc: func(ctx context.Context, key string) (int64, error) {
			return 1, nil
		},
	}
	svc, aud := testService(repo)

	msg, err := svc.ManageKey(context.Background(), testKey, "reset", ManagePayload{}, "")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !strings.Contains(msg, "1 binding") {
		t.Errorf("Message should report cleared bindings: %q", msg)
	}
	if len(aud.Entries) != 1 || aud.Entries[0].Action != audit.ActionAdminReset {
		t.Errorf("Expected admin_reset entry, got %+v", aud.Entries)
	}
}

// 6. Unbind requires a live binding
func TestManageKey_Unbind_NotBound(t *testing.T) {
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
	}
	svc, _ := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "unbind", ManagePayload{}, ""); !errors.Is(err, ErrNotBound) {
		t.Errorf("Expected ErrNotBound, got %v", err)
	}
}

// 7. Unbind names the released machine in the audit entry
func TestManageKey_Unbind(t *testing.T) {
	var released string
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		FindLiveActivationFunc: func(ctx context.Context, key string) (*data.Activation, error) {
			return &data.Activation{ID: uuid.New(), LicenseKey: key, MachineID: "machine-aaaa-0001"}, nil
		},
		DeactivateMachineFunc: func(ctx context.Context, key, machineID string) error {
			released = machineID
			return nil
		},
	}
	svc, aud := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "unbind", ManagePayload{}, ""); err != nil {
		t.Fatalf("Unbind failed: %v", err)
	}
	if released != "machine-aaaa-0001" {
		t.Errorf("Wrong machine released: %q", released)
	}
	if len(aud.Entries) != 1 || aud.Entries[0].MachineID != "machine-aaaa-0001" {
		t.Errorf("Audit entry should name the machine: %+v", aud.Entries)
	}
}

// 8. Delete cascades and leaves one surviving audit entry
func TestManageKey_Delete(t *testing.T) {
	deleted := false
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		DeleteKeyCascadeFunc: func(ctx context.Context, key string) error {
			deleted = true
			return nil
		},
	}
	svc, aud := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "delete", ManagePayload{}, ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("Cascade not invoked")
	}
	if len(aud.Entries) != 1 || aud.Entries[0].Action != audit.ActionAdminDelete {
		t.Errorf("Expected surviving admin_delete entry, got %+v", aud.Entries)
	}
}

// 9. Deleting an already-deleted key reports not found
func TestManageKey_Delete_Repeat(t *testing.T) {
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		DeleteKeyCascadeFunc: func(ctx context.Context, key string) error {
			return data.ErrRecordNotFound
		},
	}
	svc, _ := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "delete", ManagePayload{}, ""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// 10. Upgrade recomputes expiry from the earliest activation
func TestManageKey_Upgrade_RecomputesExpiry(t *testing.T) {
	activated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var gotExpiry *time.Time
	var gotTier keycodec.Tier
	var gotDuration int

	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		EarliestActivatedAtFunc: func(ctx context.Context, key string) (*time.Time, error) {
			return &activated, nil
		},
		UpdateKeyPlanFunc: func(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
			gotTier, gotDuration, gotExpiry = tier, durationDays, expiresAt
			return nil
		},
	}
	svc, aud := testService(repo)

	tier := keycodec.TierEnterprise
	days := 90
	_, err := svc.ManageKey(context.Background(), testKey, "upgrade", ManagePayload{Tier: &tier, DurationDays: &days}, "")
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	if gotTier != keycodec.TierEnterprise || gotDuration != 90 {
		t.Errorf("Plan update wrong: tier=%s duration=%d", gotTier, gotDuration)
	}
	want := activated.Add(90 * 24 * time.Hour)
	if gotExpiry == nil || !gotExpiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", gotExpiry, want)
	}
	if len(aud.Entries) != 1 || aud.Entries[0].Action != audit.ActionAdminUpgrade {
		t.Errorf("Expected admin_upgrade entry, got %+v", aud.Entries)
	}
}

// 11. Downgrade to lifetime clears the expiry
func TestManageKey_Downgrade_Lifetime(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour)
	cleared := false

	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			lk := usedKey()
			lk.ExpiresAt = &expires
			return lk, nil
		},
		UpdateKeyPlanFunc: func(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
			cleared = expiresAt == nil && durationDays == 0
			return nil
		},
	}
	svc, _ := testService(repo)

	days := 0
	if _, err := svc.ManageKey(context.Background(), testKey, "downgrade", ManagePayload{DurationDays: &days}, ""); err != nil {
		t.Fatalf("Downgrade failed: %v", err)
	}
	if !cleared {
		t.Error("Lifetime downgrade should clear expiry and duration")
	}
}

// 12. Unknown action and unknown tier are rejected
func TestManageKey_BadInput(t *testing.T) {
	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
	}
	svc, _ := testService(repo)

	if _, err := svc.ManageKey(context.Background(), testKey, "explode", ManagePayload{}, ""); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}

	badTier := keycodec.Tier("trial")
	if _, err := svc.ManageKey(context.Background(), testKey, "upgrade", ManagePayload{Tier: &badTier}, ""); !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for unknown tier, got %v", err)
	}
}

// 13. Managing a missing key
func TestManageKey_NotFound(t *testing.T) {
	svc, _ := testService(&MockRepo{})

	if _, err := svc.ManageKey(context.Background(), testKey, "revoke", ManagePayload{}, ""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// 14. A failed anchor lookup aborts the plan change instead of re-anchoring
// the expiry at now
func TestManageKey_Upgrade_AnchorQueryFails(t *testing.T) {
	updated := false

	repo := &MockRepo{
		FindKeyFunc: func(ctx context.Context, key string) (*data.LicenseKey, error) {
			return usedKey(), nil
		},
		EarliestActivatedAtFunc: func(ctx context.Context, key string) (*time.Time, error) {
			return nil, errors.New("connection reset by peer")
		},
		UpdateKeyPlanFunc: func(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
			updated = true
			return nil
		},
	}
	svc, aud := testService(repo)

	days := 90
	_, err := svc.ManageKey(context.Background(), testKey, "upgrade", ManagePayload{DurationDays: &days}, "")
	if err == nil {
		t.Fatal("Expected error when the anchor query fails")
	}
	if updated {
		t.Error("Plan must not be updated with a guessed anchor")
	}
	if len(aud.Entries) != 0 {
		t.Errorf("No audit entry expected for a failed change, got %+v", aud.Entries)
	}
}
