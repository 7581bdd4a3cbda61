package activation

import (
	"context"

	"github.com/google/uuid"

	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

// MockRepo
type MockRepo struct {
	FindKeyFunc            func(ctx context.Context, key string) (*data.LicenseKey, error)
	InsertKeyFunc          func(ctx context.Context, k *data.LicenseKey) error
	UpdateKeyStatusFunc    func(ctx context.Context, key string, to data.Status) error
	FindLiveActivationFunc func(ctx context.Context, key string) (*data.Activation, error)
	FindActivationFunc     func(ctx context.Context, key, machineID string) (*data.Activation, error)
	InsertActivationFunc   func(ctx context.Context, a *data.Activation) error
	TouchActivationFunc    func(ctx context.Context, id uuid.UUID, ip, appVersion string) error
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

func (m *MockRepo) UpdateKeyStatus(ctx context.Context, key string, to data.Status) error {
	if m.UpdateKeyStatusFunc != nil {
		return m.UpdateKeyStatusFunc(ctx, key, to)
	}
	return nil
}

func (m *MockRepo) FindLiveActivation(ctx context.Context, key string) (*data.Activation, error) {
	if m.FindLiveActivationFunc != nil {
		return m.FindLiveActivationFunc(ctx, key)
	}
	return nil, data.ErrRecordNotFound
}

func (m *MockRepo) FindActivation(ctx context.Context, key, machineID string) (*data.Activation, error) {
	if m.FindActivationFunc != nil {
		return m.FindActivationFunc(ctx, key, machineID)
	}
	return nil, data.ErrRecordNotFound
}

func (m *MockRepo) InsertActivation(ctx context.Context, a *data.Activation) error {
	if m.InsertActivationFunc != nil {
		return m.InsertActivationFunc(ctx, a)
	}
	return nil
}

func (m *MockRepo) TouchActivation(ctx context.Context, id uuid.UUID, ip, appVersion string) error {
	if m.TouchActivationFunc != nil {
		return m.TouchActivationFunc(ctx, id, ip, appVersion)
	}
	return nil
}

// MockAuditor
type MockAuditor struct {
	Entries []audit.Entry
}

func (m *MockAuditor) Append(ctx context.Context, e audit.Entry) error {
	m.Entries = append(m.Entries, e)
	return nil
}

// MockVerifier
type MockVerifier struct {
	VerifyFunc func(key string) keycodec.Result
}

func (m *MockVerifier) Verify(key string) keycodec.Result {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(key)
	}
	return keycodec.Result{Valid: false, Reason: "invalid signature"}
}
