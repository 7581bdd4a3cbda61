package activation

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/events"
	"github.com/technosupport/ts-lms/internal/expiry"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

// Repository is the slice of the persistence layer the activation flow needs.
// The implementation must enforce the one-live-activation-per-key invariant
// structurally (partial unique index) and surface a losing concurrent insert
// as data.ErrDuplicateActivation.
type Repository interface {
	FindKey(ctx context.Context, key string) (*data.LicenseKey, error)
	InsertKey(ctx context.Context, k *data.LicenseKey) error
	UpdateKeyStatus(ctx context.Context, key string, to data.Status) error
	FindLiveActivation(ctx context.Context, key string) (*data.Activation, error)
	FindActivation(ctx context.Context, key, machineID string) (*data.Activation, error)
	InsertActivation(ctx context.Context, a *data.Activation) error
	TouchActivation(ctx context.Context, id uuid.UUID, ipAddress, appVersion string) error
}

type Auditor interface {
	Append(ctx context.Context, e audit.Entry) error
}

type Verifier interface {
	Verify(key string) keycodec.Result
}

// Request carries one activate/validate/deactivate call.
type Request struct {
	Key         string `json:"key"`
	MachineID   string `json:"machine_id"`
	MachineName string `json:"machine_name,omitempty"`
	AppVersion  string `json:"app_version,omitempty"`
	IPAddress   string `json:"-"`
}

// Result is the success shape shared by Activate and Validate.
type Result struct {
	Valid         bool          `json:"valid"`
	Tier          keycodec.Tier `json:"tier"`
	ExpiresAt     *time.Time    `json:"expires_at"`
	DaysRemaining int           `json:"days_remaining"`
	ActivatedAt   time.Time     `json:"activated_at"`
	MachineID     string        `json:"machine_id"`
	Bound         bool          `json:"bound"`
}

const touchSuppressTTL = 60 * time.Second

type Service struct {
	repo   Repository
	audit  Auditor
	codec  Verifier
	notify *events.Publisher

	// recentTouches suppresses redundant last_seen writes from chatty
	// clients that validate on a short interval.
	recentTouches *lru.Cache[string, time.Time]

	now func() time.Time
}

func NewService(repo Repository, aud Auditor, codec Verifier, notify *events.Publisher) *Service {
	cache, _ := lru.New[string, time.Time](4096)
	return &Service{
		repo:          repo,
		audit:         aud,
		codec:         codec,
		notify:        notify,
		recentTouches: cache,
		now:           time.Now,
	}
}

// Activate binds a key to a machine, or confirms an existing binding.
func (s *Service) Activate(ctx context.Context, req Request) (*Result, error) {
	key := normalizeKey(req.Key)
	if err := keycodec.CheckFormat(key); err != nil {
		return nil, ErrBadFormat
	}

	lk, imported, err := s.findOrImportKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(lk); err != nil {
		return nil, err
	}

	live, err := s.repo.FindLiveActivation(ctx, key)
	if errors.Is(err, data.ErrRecordNotFound) {
		return s.bind(ctx, lk, req, imported)
	}
	if err != nil {
		return nil, storage(err)
	}

	return s.resumeExisting(ctx, lk, live, req)
}

// Validate is the non-binding heartbeat. It never creates an activation and
// lazily expires the key when the computed window has run out.
func (s *Service) Validate(ctx context.Context, req Request) (*Result, error) {
	key := normalizeKey(req.Key)
	if err := keycodec.CheckFormat(key); err != nil {
		return nil, ErrBadFormat
	}

	lk, _, err := s.findOrImportKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(lk); err != nil {
		return nil, err
	}

	act, err := s.repo.FindActivation(ctx, key, req.MachineID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, ErrNotActivated
	}
	if err != nil {
		return nil, storage(err)
	}

	exp := expiry.Compute(act.ActivatedAt, lk.DurationDays, s.now())
	if exp.Expired() {
		if err := s.repo.UpdateKeyStatus(ctx, key, data.StatusExpired); err != nil {
			log.Printf("Activation: failed to expire key %s: %v", key, err)
		}
		s.publish(events.Event{Type: events.TypeExpired, LicenseKey: key, Tier: string(lk.Tier)})
		return nil, ErrExpired
	}

	s.touch(ctx, act, req)
	return s.result(lk, act, exp), nil
}

// Deactivate always rejects: unbinding is an admin operation by policy.
func (s *Service) Deactivate(ctx context.Context, req Request) (*Result, error) {
	return nil, ErrSelfDeactivate
}

// findOrImportKey loads a key record, auto-importing unseen keys that carry
// a valid signature. Keys may be distributed without pre-registration.
func (s *Service) findOrImportKey(ctx context.Context, key string) (*data.LicenseKey, bool, error) {
	lk, err := s.repo.FindKey(ctx, key)
	if err == nil {
		return lk, false, nil
	}
	if !errors.Is(err, data.ErrRecordNotFound) {
		return nil, false, storage(err)
	}

	res := s.codec.Verify(key)
	if !res.Valid {
		return nil, false, ErrBadSignature
	}

	lk = &data.LicenseKey{
		Key:            key,
		Tier:           res.Tier,
		Status:         data.StatusActive,
		DurationDays:   res.DurationDays,
		MaxActivations: 1,
	}
	if err := s.repo.InsertKey(ctx, lk); err != nil {
		// Concurrent import is fine; re-read the winner's row.
		if existing, ferr := s.repo.FindKey(ctx, key); ferr == nil {
			return existing, false, nil
		}
		return nil, false, storage(err)
	}
	return lk, true, nil
}

func checkStatus(lk *data.LicenseKey) error {
	switch lk.Status {
	case data.StatusRevoked:
		return ErrRevoked
	case data.StatusExpired:
		return ErrExpired
	}
	return nil
}

// bind creates the first live activation for a key. A duplicate-insert
// failure means a concurrent request bound the key between our read and
// write; re-read and fall into the same-machine or conflict branch instead
// of surfacing a server error.
func (s *Service) bind(ctx context.Context, lk *data.LicenseKey, req Request, imported bool) (*Result, error) {
	act := &data.Activation{
		ID:          uuid.New(),
		LicenseKey:  lk.Key,
		MachineID:   req.MachineID,
		MachineName: req.MachineName,
		AppVersion:  req.AppVersion,
		IPAddress:   req.IPAddress,
	}

	if err := s.repo.InsertActivation(ctx, act); err != nil {
		if errors.Is(err, data.ErrDuplicateActivation) {
			live, ferr := s.repo.FindLiveActivation(ctx, lk.Key)
			if ferr != nil {
				return nil, storage(ferr)
			}
			return s.resumeExisting(ctx, lk, live, req)
		}
		return nil, storage(err)
	}

	if err := s.repo.UpdateKeyStatus(ctx, lk.Key, data.StatusUsed); err != nil &&
		!errors.Is(err, data.ErrInvalidTransition) {
		log.Printf("Activation: failed to mark key %s used: %v", lk.Key, err)
	}

	exp := expiry.Compute(act.ActivatedAt, lk.DurationDays, s.now())

	if err := s.audit.Append(ctx, audit.Entry{
		Action:     audit.ActionActivate,
		LicenseKey: lk.Key,
		MachineID:  req.MachineID,
		IPAddress:  req.IPAddress,
		Details: audit.MarshalDetails(audit.ActivateDetails{
			MachineName: req.MachineName,
			AppVersion:  req.AppVersion,
			Tier:        string(lk.Tier),
			ExpiresAt:   exp.ExpiresAt,
			Imported:    imported,
		}),
	}); err != nil {
		log.Printf("Activation: audit append failed for key %s: %v", lk.Key, err)
	}

	s.publish(events.Event{
		Type:       events.TypeActivated,
		LicenseKey: lk.Key,
		MachineID:  req.MachineID,
		Tier:       string(lk.Tier),
	})

	return s.result(lk, act, exp), nil
}

// resumeExisting handles a key that already has a live binding: idempotent
// heartbeat for the same machine, masked conflict for a different one.
func (s *Service) resumeExisting(ctx context.Context, lk *data.LicenseKey, live *data.Activation, req Request) (*Result, error) {
	if live.MachineID != req.MachineID {
		return nil, &AlreadyBoundError{BoundTo: maskMachineID(live.MachineID)}
	}

	s.touch(ctx, live, req)
	exp := expiry.Compute(live.ActivatedAt, lk.DurationDays, s.now())
	return s.result(lk, live, exp), nil
}

func (s *Service) touch(ctx context.Context, act *data.Activation, req Request) {
	cacheKey := act.LicenseKey + "|" + act.MachineID
	if last, ok := s.recentTouches.Get(cacheKey); ok && s.now().Sub(last) < touchSuppressTTL {
		return
	}
	if err := s.repo.TouchActivation(ctx, act.ID, req.IPAddress, req.AppVersion); err != nil {
		log.Printf("Activation: heartbeat refresh failed for %s: %v", act.LicenseKey, err)
		return
	}
	s.recentTouches.Add(cacheKey, s.now())
}

func (s *Service) result(lk *data.LicenseKey, act *data.Activation, exp expiry.Expiry) *Result {
	return &Result{
		Valid:         true,
		Tier:          lk.Tier,
		ExpiresAt:     exp.ExpiresAt,
		DaysRemaining: exp.DaysRemaining,
		ActivatedAt:   act.ActivatedAt,
		MachineID:     act.MachineID,
		Bound:         true,
	}
}

func (s *Service) publish(event events.Event) {
	if err := s.notify.Publish(event); err != nil {
		log.Printf("Activation: event publish failed: %v", err)
	}
}

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
