// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/cache"
	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/store"
)

// capturePublisher records published feedback messages.
type capturePublisher struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (p *capturePublisher) Publish(_ string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msgs...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// failingStore wraps the memory store with scripted SaveEvent failures.
type failingStore struct {
	store.Store
	saveErr error
}

func (f *failingStore) SaveEvent(ctx context.Context, e *models.Event) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.SaveEvent(ctx, e)
}

func newTestIngestor(t *testing.T, st store.Store, pub message.Publisher) (*Ingestor, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.DefaultConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return New(st, c, pub, zerolog.Nop()), c
}

func rating(v float64) *float64 { return &v }

func TestProcessEventSuccess(t *testing.T) {
	st := store.NewMemory()
	ing, _ := newTestIngestor(t, st, nil)

	res := ing.ProcessEvent(context.Background(), &models.Event{
		UserID: 1, ItemID: 10, Type: models.EventView,
	})
	if res.Status != "success" {
		t.Fatalf("Status = %q (%s), want success", res.Status, res.Message)
	}
	if res.EventID == "" {
		t.Error("EventID empty, want generated ID")
	}

	profile, err := st.Profile(context.Background(), 1)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d, want 1", profile.TotalInteractions)
	}
}

func TestProcessEventValidation(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
	}{
		{"missing user", models.Event{ItemID: 10, Type: models.EventView}},
		{"missing item", models.Event{UserID: 1, Type: models.EventView}},
		{"missing type", models.Event{UserID: 1, ItemID: 10}},
		{"unknown type", models.Event{UserID: 1, ItemID: 10, Type: "share"}},
		{"rate without rating", models.Event{UserID: 1, ItemID: 10, Type: models.EventRate}},
		{"rating out of range", models.Event{UserID: 1, ItemID: 10, Type: models.EventRate, Rating: rating(6)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			ing, _ := newTestIngestor(t, st, nil)

			res := ing.ProcessEvent(context.Background(), &tt.event)
			if res.Status != "error" {
				t.Fatalf("Status = %q, want error", res.Status)
			}

			// No side effects on rejection.
			if _, err := st.Profile(context.Background(), tt.event.UserID); !errors.Is(err, store.ErrNotFound) {
				t.Error("rejected event created a profile")
			}
		})
	}
}

func TestProcessEventPersistenceFailure(t *testing.T) {
	st := &failingStore{Store: store.NewMemory(), saveErr: errors.New("disk full")}
	ing, _ := newTestIngestor(t, st, nil)

	res := ing.ProcessEvent(context.Background(), &models.Event{
		UserID: 1, ItemID: 10, Type: models.EventView,
	})
	if res.Status != "error" {
		t.Fatalf("Status = %q, want error", res.Status)
	}

	// No partial profile update without a persisted event.
	if _, err := st.Profile(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Error("profile updated despite persistence failure")
	}
}

func TestProcessEventRecomputesAvgRating(t *testing.T) {
	st := store.NewMemory()
	ing, _ := newTestIngestor(t, st, nil)
	ctx := context.Background()

	ing.ProcessEvent(ctx, &models.Event{UserID: 1, ItemID: 10, Type: models.EventRate, Rating: rating(5)})
	ing.ProcessEvent(ctx, &models.Event{UserID: 1, ItemID: 11, Type: models.EventRate, Rating: rating(2)})

	profile, err := st.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.TotalRatings != 2 {
		t.Errorf("TotalRatings = %d, want 2", profile.TotalRatings)
	}
	if profile.AvgRating != 3.5 {
		t.Errorf("AvgRating = %v, want 3.5", profile.AvgRating)
	}
}

func TestProcessEventInvalidatesCache(t *testing.T) {
	st := store.NewMemory()
	ing, c := newTestIngestor(t, st, nil)
	ctx := context.Background()

	c.Set(ctx, 1, "hybrid", []models.Recommendation{{ItemID: 1}}, 10, 0)
	c.Set(ctx, 2, "hybrid", []models.Recommendation{{ItemID: 2}}, 10, 0)

	ing.ProcessEvent(ctx, &models.Event{UserID: 1, ItemID: 10, Type: models.EventClick})

	if _, ok := c.Get(ctx, 1, "hybrid", 10); ok {
		t.Error("user 1 cache entry survived event ingestion")
	}
	if _, ok := c.Get(ctx, 2, "hybrid", 10); !ok {
		t.Error("user 2 cache entry was invalidated by user 1's event")
	}
}

func TestProcessEventForwardsRatingFeedback(t *testing.T) {
	st := store.NewMemory()
	pub := &capturePublisher{}
	ing, _ := newTestIngestor(t, st, pub)
	ctx := context.Background()

	ing.ProcessEvent(ctx, &models.Event{UserID: 1, ItemID: 10, Type: models.EventView})
	if pub.count() != 0 {
		t.Errorf("view event published %d feedback messages, want 0", pub.count())
	}

	ing.ProcessEvent(ctx, &models.Event{UserID: 1, ItemID: 10, Type: models.EventRate, Rating: rating(4)})
	if pub.count() != 1 {
		t.Errorf("rate event published %d feedback messages, want 1", pub.count())
	}
}

func TestConcurrentEventsSameUser(t *testing.T) {
	st := store.NewMemory()
	ing, _ := newTestIngestor(t, st, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ing.ProcessEvent(ctx, &models.Event{
				UserID: 1, ItemID: i + 1, Type: models.EventView,
				Timestamp: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	profile, err := st.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.TotalInteractions != n {
		t.Errorf("TotalInteractions = %d, want %d (lost updates)", profile.TotalInteractions, n)
	}
}
