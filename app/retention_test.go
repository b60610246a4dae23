package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/clock"
	"github.com/ambrood/sitepulse/adapters/memory"
	"github.com/ambrood/sitepulse/app"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/domain/retention"
)

func TestSweepValidation(t *testing.T) {
	svc := app.NewRetentionService(memory.NewAnalyticsStore(), clock.NewFake(time.Now()), zerolog.Nop(), nil)

	for _, days := range []int{0, -1, retention.MinDays - 1, retention.MaxDays + 1} {
		if _, err := svc.Sweep(context.Background(), days); !errors.Is(err, retention.ErrInvalidDays) {
			t.Errorf("Sweep(%d) error = %v, want ErrInvalidDays", days, err)
		}
	}
}

func TestSweepDeletesOldData(t *testing.T) {
	store := memory.NewAnalyticsStore()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	svc := app.NewRetentionService(store, clock.NewFake(now), zerolog.Nop(), nil)

	old := now.AddDate(0, 0, -40)
	fresh := now.AddDate(0, 0, -5)
	for i, ts := range []time.Time{old, old.Add(time.Hour), fresh} {
		e := event.Event{
			ID:        fmt.Sprintf("e%d", i),
			PageURL:   "/",
			SessionID: fmt.Sprintf("s%d", i),
			Timestamp: ts,
		}
		if err := store.RecordEvent(context.Background(), e); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	result, err := svc.Sweep(context.Background(), retention.MinDays)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.EventsDeleted != 2 || result.PageViewsDeleted != 2 || result.SessionsDeleted != 2 {
		t.Fatalf("deleted = %+v, want 2/2/2", result)
	}
	if result.Total() != 6 {
		t.Fatalf("Total() = %d, want 6", result.Total())
	}

	events, pageViews, sessions := store.Len()
	if events != 1 || pageViews != 1 || sessions != 1 {
		t.Fatalf("remaining = %d/%d/%d, want 1/1/1", events, pageViews, sessions)
	}

	// Idempotent: a second sweep with the same policy deletes nothing.
	again, err := svc.Sweep(context.Background(), retention.MinDays)
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if again.Total() != 0 {
		t.Fatalf("second sweep deleted %d rows, want 0", again.Total())
	}
}

func TestSweepSurfacesStorageError(t *testing.T) {
	storeErr := errors.New("locked")
	svc := app.NewRetentionService(&brokenStore{err: storeErr}, clock.NewFake(time.Now()), zerolog.Nop(), nil)

	if _, err := svc.Sweep(context.Background(), retention.DefaultDays); !errors.Is(err, storeErr) {
		t.Fatalf("Sweep() error = %v, want %v", err, storeErr)
	}
}
