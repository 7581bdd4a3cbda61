package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

// MockRepo
type MockRepo struct {
	FindKeyFunc              func(ctx context.Context, key string) (*data.LicenseKey, error)
	InsertKeyFunc            func(ctx context.Context, k *data.LicenseKey) error
	ListKeysFunc             func(ctx context.Context, filter data.KeyFilter, limit, offset int) ([]*data.KeySummary, error)
	UpdateKeyStatusAdminFunc func(ctx context.Context, key string, to data.Status) error
	UpdateKeyPlanFunc        func(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error
	DeleteKeyCascadeFunc     func(ctx context.Context, key string) error
	FindLiveActivationFunc   func(ctx context.Context, key string) (*data.Activation, error)
	DeactivateLiveFunc       func(ctx context.Context, key string) (int64, error)
	DeactivateMachineFunc    func(ctx context.Context, key, machineID string) error
	EarliestActivatedAtFunc  func(ctx context.Context, key string) (*time.Time, error)
}

func (m *MockRepo) FindKey(ctx context.Context, key string) (*data.LicenseKey, error) {
	if m.FindKeyFunc != nil {
		return m.FindKeyFunc(ctx, key)
	}
	return nil, data.ErrRecordNotFound
}

func (m *MockRepo) InsertKey(ctx context.Context, k *data.LicenseKey) error {
	if m.InsertKeyFunc != nil {
		return m.InsertKeyFunc(ctx, k)
	}
	return nil
}

func (m *MockRepo) ListKeys(ctx context.Context, filter data.KeyFilter, limit, offset int) ([]*data.KeySummary, error) {
	if m.ListKeysFunc != nil {
		return m.ListKeysFunc(ctx, filter, limit, offset)
	}
	return nil, nil
}

func (m *MockRepo) UpdateKeyStatusAdmin(ctx context.Context, key string, to data.Status) error {
	if m.UpdateKeyStatusAdminFunc != nil {
		return m.UpdateKeyStatusAdminFunc(ctx, key, to)
	}
	return nil
}

func (m *MockRepo) UpdateKeyPlan(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error {
	if m.UpdateKeyPlanFunc != nil {
		return m.UpdateKeyPlanFunc(ctx, key, tier, durationDays, maxActivations, expiresAt)
	}
	return nil
}

func (m *MockRepo) DeleteKeyCascade(ctx context.Context, key string) error {
	if m.DeleteKeyCascadeFunc != nil {
		return m.DeleteKeyCascadeFunc(ctx, key)
	}
	return nil
}

func (m *MockRepo) FindLiveActivation(ctx context.Context, key string) (*data.Activation, error) {
	if m.FindLiveActivationFunc != nil {
		return m.FindLiveActivationFunc(ctx, key)
	}
	return nil, data.ErrRecordNotFound
}

func (m *MockRepo) DeactivateLive(ctx context.Context, key string) (int64, error) {
	if m.DeactivateLiveFunc != nil {
		return m.DeactivateLiveFunc(ctx, key)
	}
	return 0, nil
}

func (m *MockRepo) DeactivateMachine(ctx context.Context, key, machineID string) error {
	if m.DeactivateMachineFunc != nil {
		return m.DeactivateMachineFunc(ctx, key, machineID)
	}
	return nil
}

func (m *MockRepo) EarliestActivatedAt(ctx context.Context, key string) (*time.Time, error) {
	if m.EarliestActivatedAtFunc != nil {
		return m.EarliestActivatedAtFunc(ctx, key)
	}
	return nil, nil
}

// MockAuditor
type MockAuditor struct {
	Entries []audit.Entry
}

func (m *MockAuditor) Append(ctx context.Context, e audit.Entry) error {
	m.Entries = append(m.Entries, e)
	return nil
}

func (m *MockAuditor) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return m.Entries, nil
}

// MockMinter
type MockMinter struct {
	Minted int
}

func (m *MockMinter) Generate(tier keycodec.Tier, durationDays int) (string, error) {
	m.Minted++
	return fmt.Sprintf("TEST-%04d-PDAQ-1A2B", m.Minted), nil
}
