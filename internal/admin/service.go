// Package admin implements the privileged key management surface. Every
// operation here bypasses the single-binding negotiation and writes an audit
// entry with before/after values.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/events"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

var (
	ErrUnknownAction = errors.New("unknown manage action")
	ErrNotBound      = errors.New("license key has no live activation")
	ErrKeyNotFound   = errors.New("license key not found")
	ErrBadRequest    = errors.New("invalid request")
)

type Repository interface {
	FindKey(ctx context.Context, key string) (*data.LicenseKey, error)
	InsertKey(ctx context.Context, k *data.LicenseKey) error
	ListKeys(ctx context.Context, filter data.KeyFilter, limit, offset int) ([]*data.KeySummary, error)
	UpdateKeyStatusAdmin(ctx context.Context, key string, to data.Status) error
	UpdateKeyPlan(ctx context.Context, key string, tier keycodec.Tier, durationDays, maxActivations int, expiresAt *time.Time) error
	DeleteKeyCascade(ctx context.Context, key string) error
	FindLiveActivation(ctx context.Context, key string) (*data.Activation, error)
	DeactivateLive(ctx context.Context, key string) (int64, error)
	DeactivateMachine(ctx context.Context, key, machineID string) error
	EarliestActivatedAt(ctx context.Context, key string) (*time.Time, error)
}

type Auditor interface {
	Append(ctx context.Context, e audit.Entry) error
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type KeyMinter interface {
	Generate(tier keycodec.Tier, durationDays int) (string, error)
}

type Service struct {
	repo   Repository
	audit  Auditor
	minter KeyMinter
	notify *events.Publisher
	now    func() time.Time
}

func NewService(repo Repository, aud Auditor, minter KeyMinter, notify *events.Publisher) *Service {
	return &Service{repo: repo, audit: aud, minter: minter, notify: notify, now: time.Now}
}

func (s *Service) ListKeys(ctx context.Context, filter data.KeyFilter, limit, offset int) ([]*data.KeySummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListKeys(ctx, filter, limit, offset)
}

type GenerateRequest struct {
	Tier           keycodec.Tier `json:"tier"`
	Count          int           `json:"count"`
	DurationDays   int           `json:"duration_days"`
	MaxActivations int           `json:"max_activations"`
	Notes          string        `json:"notes,omitempty"`
}

// GenerateKeys mints and registers a batch of signed keys.
func (s *Service) GenerateKeys(ctx context.Context, req GenerateRequest) ([]*data.LicenseKey, error) {
	if req.Count <= 0 || req.Count > 1000 {
		return nil, fmt.Errorf("%w: count must be between 1 and 1000", ErrBadRequest)
	}
	if req.MaxActivations < 1 {
		req.MaxActivations = 1
	}

	bucket := keycodec.BucketFor(req.DurationDays)

	keys := make([]*data.LicenseKey, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		keyStr, err := s.minter.Generate(req.Tier, bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}

		k := &data.LicenseKey{
			Key:            keyStr,
			Tier:           req.Tier,
			Status:         data.StatusActive,
			DurationDays:   bucket,
			MaxActivations: req.MaxActivations,
			Notes:          req.Notes,
		}
		if err := s.repo.InsertKey(ctx, k); err != nil {
			return nil, err
		}
		keys = append(keys, k)

		s.publish(events.Event{Type: events.TypeKeyGenerated, LicenseKey: k.Key, Tier: string(k.Tier)})
	}
	return keys, nil
}

// ManagePayload carries the optional parameters of a manage action.
type ManagePayload struct {
	Reason         string         `json:"reason,omitempty"`
	Tier           *keycodec.Tier `json:"tier,omitempty"`
	DurationDays   *int           `json:"duration_days,omitempty"`
	MaxActivations *int           `json:"max_activations,omitempty"`
}

// ManageKey dispatches one privileged action against a key and returns a
// human-readable result message.
func (s *Service) ManageKey(ctx context.Context, key, action string, payload ManagePayload, adminIP string) (string, error) {
	lk, err := s.repo.FindKey(ctx, key)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return "", ErrKeyNotFound
		}
		return "", err
	}

	switch action {
	case "revoke":
		return s.revoke(ctx, lk, payload, adminIP)
	case "activate":
		return s.reactivate(ctx, lk, adminIP)
	case "reset":
		return s.reset(ctx, lk, adminIP)
	case "unbind":
		return s.unbind(ctx, lk, adminIP)
	case "delete":
		return s.delete(ctx, lk, adminIP)
	case "upgrade", "downgrade":
		return s.changePlan(ctx, lk, action, payload, adminIP)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (s *Service) ListAuditLog(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.audit.List(ctx, f)
}

func (s *Service) revoke(ctx context.Context, lk *data.LicenseKey, payload ManagePayload, adminIP string) (string, error) {
	if err := s.repo.UpdateKeyStatusAdmin(ctx, lk.Key, data.StatusRevoked); err != nil {
		return "", err
	}

	s.append(ctx, audit.Entry{
		Action:     audit.ActionAdminRevoke,
		LicenseKey: lk.Key,
		IPAddress:  adminIP,
		Details: audit.MarshalDetails(audit.RevokeDetails{
			PriorStatus: string(lk.Status),
			Reason:      payload.Reason,
		}),
	})
	s.publish(events.Event{Type: events.TypeRevoked, LicenseKey: lk.Key, Tier: string(lk.Tier)})

	return "key revoked", nil
}

func (s *Service) reactivate(ctx context.Context, lk *data.LicenseKey, adminIP string) (string, error) {
	if err := s.repo.UpdateKeyStatusAdmin(ctx, lk.Key, data.StatusActive); err != nil {
		return "", err
	}

	s.append(ctx, audit.Entry{
		Action:     audit.ActionReactivate,
		LicenseKey: lk.Key,
		IPAddress:  adminIP,
		Details:    audit.MarshalDetails(audit.ReactivateDetails{PriorStatus: string(lk.Status)}),
	})

	return "key reactivated", nil
}

// reset releases every live binding and makes the key activatable again.
func (s *Service) reset(ctx context.Context, lk *data.LicenseKey, adminIP string) (string, error) {
	cleared, err := s.repo.DeactivateLive(ctx, lk.Key)
	if err != nil {
		return "", err
	}
	if err := s.markActive(ctx, lk); err != nil {
		return "", err
	}

	s.append(ctx, audit.Entry{
		Action:     audit.ActionAdminReset,
		LicenseKey: lk.Key,
		IPAddress:  adminIP,
		Details:    audit.MarshalDetails(audit.ResetDetails{Cleared: cleared}),
	})

	return fmt.Sprintf("key reset, %d binding(s) cleared", cleared), nil
}

// unbind releases the single current binding and names the machine in the
// audit entry.
func (s *Service) unbind(ctx context.Context, lk *data.LicenseKey, adminIP string) (string, error) {
	live, err := s.repo.FindLiveActivation(ctx, lk.Key)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return "", ErrNotBound
		}
		return "", err
	}

	if err := s.repo.DeactivateMachine(ctx, lk.Key, live.MachineID); err != nil {
		return "", err
	}
	if err := s.markActive(ctx, lk); err != nil {
		return "", err
	}

	s.append(ctx, audit.Entry{
		Action:     audit.ActionAdminUnbind,
		LicenseKey: lk.Key,
		MachineID:  live.MachineID,
		IPAddress:  adminIP,
		Details:    audit.MarshalDetails(audit.UnbindDetails{MachineID: live.MachineID}),
	})
	s.publish(events.Event{Type: events.TypeUnbound, LicenseKey: lk.Key, MachineID: live.MachineID})

	return fmt.Sprintf("machine %s unbound", live.MachineID), nil
}

func (s *Service) delete(ctx context.Context, lk *data.LicenseKey, adminIP string) (string, error) {
	if err := s.repo.DeleteKeyCascade(ctx, lk.Key); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return "", ErrKeyNotFound
		}
		return "", err
	}

	// The cascade removed the key's audit trail; this entry records the
	// deletion itself and intentionally survives it.
	s.append(ctx, audit.Entry{
		Action:     audit.ActionAdminDelete,
		LicenseKey: lk.Key,
		IPAddress:  adminIP,
		Details: audit.MarshalDetails(audit.DeleteDetails{
			Tier:   string(lk.Tier),
			Status: string(lk.Status),
		}),
	})
	s.publish(events.Event{Type: events.TypeDeleted, LicenseKey: lk.Key, Tier: string(lk.Tier)})

	return "key deleted", nil
}

// changePlan applies an upgrade or downgrade. A new positive duration
// recomputes expires_at from the earliest tracked activation, or from now if
// the key was never activated; duration 0 clears it (lifetime).
func (s *Service) changePlan(ctx context.Context, lk *data.LicenseKey, action string, payload ManagePayload, adminIP string) (string, error) {
	tier := lk.Tier
	if payload.Tier != nil {
		tier = *payload.Tier
	}
	if tier != keycodec.TierPro && tier != keycodec.TierEnterprise {
		return "", fmt.Errorf("%w: unknown tier %q", ErrBadRequest, tier)
	}

	durationDays := lk.DurationDays
	expiresAt := lk.ExpiresAt
	if payload.DurationDays != nil {
		durationDays = keycodec.BucketFor(*payload.DurationDays)
		if durationDays == 0 {
			expiresAt = nil
		} else {
			earliest, err := s.repo.EarliestActivatedAt(ctx, lk.Key)
			if err != nil {
				return "", fmt.Errorf("reading activation anchor for %s: %w", lk.Key, err)
			}
			// Never-activated keys anchor at the time of the change.
			anchor := s.now().UTC()
			if earliest != nil {
				anchor = *earliest
			}
			t := anchor.Add(time.Duration(durationDays) * 24 * time.Hour)
			expiresAt = &t
		}
	}

	maxActivations := lk.MaxActivations
	if payload.MaxActivations != nil && *payload.MaxActivations >= 1 {
		maxActivations = *payload.MaxActivations
	}

	if err := s.repo.UpdateKeyPlan(ctx, lk.Key, tier, durationDays, maxActivations, expiresAt); err != nil {
		return "", err
	}

	auditAction := audit.ActionAdminUpgrade
	if action == "downgrade" {
		auditAction = audit.ActionAdminDowngrade
	}
	s.append(ctx, audit.Entry{
		Action:     auditAction,
		LicenseKey: lk.Key,
		IPAddress:  adminIP,
		Details: audit.MarshalDetails(audit.TierChangeDetails{
			FromTier:     string(lk.Tier),
			ToTier:       string(tier),
			FromDuration: lk.DurationDays,
			ToDuration:   durationDays,
			FromMax:      lk.MaxActivations,
			ToMax:        maxActivations,
			ExpiresAt:    expiresAt,
		}),
	})
	s.publish(events.Event{Type: events.TypePlanChanged, LicenseKey: lk.Key, Tier: string(tier)})

	return fmt.Sprintf("key %sd to %s", action, tier), nil
}

func (s *Service) markActive(ctx context.Context, lk *data.LicenseKey) error {
	err := s.repo.UpdateKeyStatusAdmin(ctx, lk.Key, data.StatusActive)
	if errors.Is(err, data.ErrInvalidTransition) {
		// Already active.
		return nil
	}
	return err
}

func (s *Service) append(ctx context.Context, e audit.Entry) {
	if err := s.audit.Append(ctx, e); err != nil {
		log.Printf("Admin: audit append failed for key %s: %v", e.LicenseKey, err)
	}
}

func (s *Service) publish(event events.Event) {
	if err := s.notify.Publish(event); err != nil {
		log.Printf("Admin: event publish failed: %v", err)
	}
}
