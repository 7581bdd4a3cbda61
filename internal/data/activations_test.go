package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// 1. Insert populates server-side timestamps
func TestActivationInsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	now := time.Now()
	mock.ExpectQuery("INSERT INTO license_activations").
		WillReturnRows(sqlmock.NewRows([]string{"activated_at", "last_seen_at"}).AddRow(now, now))

	a := &Activation{LicenseKey: testKey, MachineID: "machine-aaaa-0001"}
	if err := m.Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("ID not generated")
	}
	if !a.ActivatedAt.Equal(now) {
		t.Error("ActivatedAt not populated from RETURNING")
	}
}

// 2. A unique violation on the live index surfaces as ErrDuplicateActivation
func TestActivationInsert_LoserOfRace(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectQuery("INSERT INTO license_activations").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_license_activations_live"})

	err := m.Insert(context.Background(), &Activation{LicenseKey: testKey, MachineID: "m2"})
	if !errors.Is(err, ErrDuplicateActivation) {
		t.Errorf("Expected ErrDuplicateActivation, got %v", err)
	}
}

// 3. Other DB errors pass through unchanged
func TestActivationInsert_OtherError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectQuery("INSERT INTO license_activations").
		WillReturnError(&pq.Error{Code: "23503"}) // FK violation

	err := m.Insert(context.Background(), &Activation{LicenseKey: testKey, MachineID: "m2"})
	if errors.Is(err, ErrDuplicateActivation) || err == nil {
		t.Errorf("FK violation must not map to ErrDuplicateActivation: %v", err)
	}
}

// 4. FindLive with no live row
func TestFindLive_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectQuery("SELECT id, license_key").
		WithArgs(testKey).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := m.FindLive(context.Background(), testKey); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

// 5. DeactivateLive reports cleared rows, zero included
func TestDeactivateLive(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectExec("UPDATE license_activations").
		WithArgs(testKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cleared, err := m.DeactivateLive(context.Background(), testKey)
	if err != nil {
		t.Fatalf("DeactivateLive failed: %v", err)
	}
	if cleared != 0 {
		t.Errorf("Expected 0 cleared, got %d", cleared)
	}
}

// 6. DeactivateMachine on an unbound machine is not found
func TestDeactivateMachine_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectExec("UPDATE license_activations").
		WithArgs(testKey, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := m.DeactivateMachine(context.Background(), testKey, "ghost"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

// 7. Touch requires a live row
func TestTouch_Deactivated(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectExec("UPDATE license_activations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := m.Touch(context.Background(), uuid.New(), "10.0.0.1", "2.4.1"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

// 8. EarliestActivatedAt is nil for never-activated keys
func TestEarliestActivatedAt_None(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	m := ActivationModel{DB: db}

	mock.ExpectQuery("SELECT MIN").
		WithArgs(testKey).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	earliest, err := m.EarliestActivatedAt(context.Background(), testKey)
	if err != nil {
		t.Fatalf("EarliestActivatedAt failed: %v", err)
	}
	if earliest != nil {
		t.Errorf("Expected nil, got %v", earliest)
	}
}
