package data

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// 1. Cascade delete clears audit, activations and the key in one transaction
func TestDeleteKeyCascade(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM license_audit_log").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM license_activations").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM license_keys").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.DeleteKeyCascade(context.Background(), testKey); err != nil {
		t.Fatalf("DeleteKeyCascade failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// 2. Deleting a missing key rolls back with not found
func TestDeleteKeyCascade_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM license_audit_log").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM license_activations").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM license_keys").
		WithArgs(testKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.DeleteKeyCascade(context.Background(), testKey); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}
