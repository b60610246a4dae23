package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ambrood/sitepulse/adapters/sqlite"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/query"
)

var errDown = errors.New("database is locked")

func mockStore(t *testing.T) (*sqlite.AnalyticsStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	store := sqlite.NewAnalyticsStore(&sqlite.DB{DB: db})
	return store, mock, func() { db.Close() }
}

func TestAnalyticsStore_RecordEvent_Error(t *testing.T) {
	store, mock, done := mockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errDown)
	mock.ExpectRollback()

	err := store.RecordEvent(context.Background(), event.Event{ID: "e1", PageURL: "/", SessionID: "s1", Timestamp: time.Now()})
	if !errors.Is(err, errDown) {
		t.Errorf("RecordEvent error = %v, want wrapped %v", err, errDown)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAnalyticsStore_QueryExact_Error(t *testing.T) {
	store, mock, done := mockStore(t)
	defer done()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDown)

	_, err := store.QueryExact(context.Background(), query.Params{Start: time.Now().AddDate(0, 0, -7), End: time.Now()})
	if !errors.Is(err, errDown) {
		t.Errorf("QueryExact error = %v, want wrapped %v", err, errDown)
	}
}

func TestAnalyticsStore_Sweep_Error(t *testing.T) {
	store, mock, done := mockStore(t)
	defer done()

	mock.ExpectExec("DELETE FROM events").WillReturnError(errDown)

	_, err := store.Sweep(context.Background(), time.Now().AddDate(0, 0, -365))
	if !errors.Is(err, errDown) {
		t.Errorf("Sweep error = %v, want wrapped %v", err, errDown)
	}
}

func TestAnalyticsStore_Sweep_PartialFailure(t *testing.T) {
	store, mock, done := mockStore(t)
	defer done()

	// Events delete succeeds, page_views delete fails: the result carries
	// the partial counts so callers can retry idempotently.
	mock.ExpectExec("DELETE FROM events").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DELETE FROM page_views").WillReturnError(errDown)

	result, err := store.Sweep(context.Background(), time.Now().AddDate(0, 0, -365))
	if err == nil {
		t.Fatal("expected an error")
	}
	if result.EventsDeleted != 10 {
		t.Errorf("EventsDeleted = %d, want 10 (partial progress reported)", result.EventsDeleted)
	}
	if result.PageViewsDeleted != 0 || result.SessionsDeleted != 0 {
		t.Errorf("unexpected counts after failure: %+v", result)
	}
}
