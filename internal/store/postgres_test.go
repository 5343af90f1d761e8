package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ramin-sadeghi/briefer/internal/brief"
)

func TestPostgresGetFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	stored := brief.FinalBrief{Topic: "quantum computing", Synthesis: "s"}
	raw, _ := json.Marshal(stored)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT last_brief, updated_at FROM context_records WHERE identity = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"last_brief", "updated_at"}).AddRow(raw, now))

	rec, ok, err := s.Get(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.LastBrief.Topic != "quantum computing" {
		t.Fatalf("wrong brief: %+v", rec.LastBrief)
	}
	if rec.Identity != "u1" || !rec.UpdatedAt.Equal(now) {
		t.Fatalf("wrong record metadata: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresGetAbsentIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectQuery(`SELECT last_brief, updated_at FROM context_records`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("absent identity reported present")
	}
}

func TestPostgresGetFailureWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectQuery(`SELECT last_brief, updated_at FROM context_records`).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, _, err = s.Get(context.Background(), "u1")
	var cse *brief.ContextStoreError
	if !errors.As(err, &cse) || cse.Op != "get" {
		t.Fatalf("want ContextStoreError{get}, got %v", err)
	}
}

func TestPostgresPutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectExec(`INSERT INTO context_records .*ON CONFLICT \(identity\) DO UPDATE`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Put(context.Background(), "u1", brief.FinalBrief{Topic: "t"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresPutFailureWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectExec(`INSERT INTO context_records`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err = s.Put(context.Background(), "u1", brief.FinalBrief{Topic: "t"})
	var cse *brief.ContextStoreError
	if !errors.As(err, &cse) || cse.Op != "put" {
		t.Fatalf("want ContextStoreError{put}, got %v", err)
	}
}
