// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package learner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/models"
	"github.com/tomtom215/suggestus/internal/oracle"
)

// mockTrainable records Fit calls.
type mockTrainable struct {
	mu     sync.Mutex
	name   string
	err    error
	fitted [][]models.Rating
}

func (m *mockTrainable) Name() string  { return m.name }
func (m *mockTrainable) IsReady() bool { return true }

func (m *mockTrainable) Predict(context.Context, int, int, bool, []int) ([]oracle.Prediction, error) {
	return nil, nil
}

func (m *mockTrainable) Fit(_ context.Context, ratings []models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.fitted = append(m.fitted, ratings)
	return nil
}

func (m *mockTrainable) fitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fitted)
}

func newTestLearner(cfg Config) *Learner {
	return New(cfg, zerolog.Nop())
}

func TestAddFeedbackBufferTrigger(t *testing.T) {
	l := newTestLearner(Config{BufferSize: 3, AutoUpdate: true})

	for i := 1; i <= 2; i++ {
		res := l.AddFeedback(1, i, 4, time.Now())
		if res.ShouldUpdate {
			t.Fatalf("ShouldUpdate = true at buffer size %d, want false", res.BufferSize)
		}
	}

	res := l.AddFeedback(1, 3, 4, time.Now())
	if !res.ShouldUpdate {
		t.Fatal("ShouldUpdate = false at full buffer, want true")
	}
	if res.Reason != "buffer_full" {
		t.Errorf("Reason = %q, want buffer_full", res.Reason)
	}
	if res.BufferSize != 3 {
		t.Errorf("BufferSize = %d, want 3", res.BufferSize)
	}
}

func TestTimeTriggerOnlyAfterFirstUpdate(t *testing.T) {
	l := newTestLearner(Config{BufferSize: 100, UpdateInterval: time.Millisecond, AutoUpdate: true})

	// No update has happened: the time trigger must not fire even after
	// the interval elapses.
	l.AddFeedback(1, 1, 4, time.Now())
	time.Sleep(5 * time.Millisecond)
	res := l.AddFeedback(1, 2, 4, time.Now())
	if res.ShouldUpdate {
		t.Fatal("time trigger fired before the first update")
	}

	l.TriggerUpdate(context.Background())

	l.AddFeedback(1, 3, 4, time.Now())
	time.Sleep(5 * time.Millisecond)
	res = l.AddFeedback(1, 4, 4, time.Now())
	if !res.ShouldUpdate {
		t.Fatal("time trigger did not fire after the first update")
	}
	if res.Reason != "interval_elapsed" {
		t.Errorf("Reason = %q, want interval_elapsed", res.Reason)
	}
}

func TestAutoUpdateDisabled(t *testing.T) {
	l := newTestLearner(Config{BufferSize: 1, AutoUpdate: false})

	res := l.AddFeedback(1, 1, 4, time.Now())
	if res.ShouldUpdate {
		t.Error("ShouldUpdate = true with auto-update disabled")
	}
}

func TestTriggerUpdateEmptyBuffer(t *testing.T) {
	l := newTestLearner(DefaultConfig())

	res := l.TriggerUpdate(context.Background())
	if res.Updated {
		t.Error("Updated = true on an empty buffer")
	}
	if res.TotalUpdates != 0 {
		t.Errorf("TotalUpdates = %d, want 0", res.TotalUpdates)
	}
}

func TestTriggerUpdateDrainsBuffer(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	model := &mockTrainable{name: "m"}
	l.Register("m", model)

	l.AddFeedback(1, 1, 5, time.Now())
	l.AddFeedback(1, 2, 3, time.Now())

	res := l.TriggerUpdate(context.Background())
	if !res.Updated {
		t.Fatal("Updated = false")
	}
	if res.FeedbackCount != 2 {
		t.Errorf("FeedbackCount = %d, want 2", res.FeedbackCount)
	}
	if len(res.ModelsUpdated) != 1 || res.ModelsUpdated[0] != "m" {
		t.Errorf("ModelsUpdated = %v, want [m]", res.ModelsUpdated)
	}
	if model.fitCount() != 1 {
		t.Errorf("model fitted %d times, want 1", model.fitCount())
	}

	if got := l.GetStats().BufferSize; got != 0 {
		t.Errorf("buffer size after drain = %d, want 0", got)
	}

	// The drained buffer must not be re-drained.
	again := l.TriggerUpdate(context.Background())
	if again.Updated {
		t.Error("second TriggerUpdate drained an empty buffer")
	}
}

func TestFailingModelDoesNotBlockOthers(t *testing.T) {
	l := newTestLearner(DefaultConfig())
	broken := &mockTrainable{name: "broken", err: errors.New("refit failed")}
	healthy := &mockTrainable{name: "healthy"}
	l.Register("broken", broken)
	l.Register("healthy", healthy)

	l.AddFeedback(1, 1, 5, time.Now())
	res := l.TriggerUpdate(context.Background())

	if !res.Updated {
		t.Fatal("Updated = false")
	}
	if len(res.ModelsUpdated) != 1 || res.ModelsUpdated[0] != "healthy" {
		t.Errorf("ModelsUpdated = %v, want [healthy]", res.ModelsUpdated)
	}

	// The buffer cleared despite the failure.
	if got := l.GetStats().BufferSize; got != 0 {
		t.Errorf("buffer size = %d, want 0 after failed update", got)
	}
	if l.GetStats().TotalUpdates != 1 {
		t.Errorf("TotalUpdates = %d, want 1", l.GetStats().TotalUpdates)
	}
}

func TestCollaborativeSlidingWindowRefit(t *testing.T) {
	catalog := map[int]models.Item{1: {ID: 1}, 2: {ID: 2}, 3: {ID: 3}}
	cf := oracle.NewCollaborative(catalog)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	initial := []models.Rating{
		{UserID: 1, ItemID: 1, Rating: 5, Timestamp: base},
		{UserID: 2, ItemID: 1, Rating: 4, Timestamp: base.Add(time.Minute)},
	}
	if err := cf.Fit(context.Background(), initial); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	l := newTestLearner(Config{BufferSize: 100, MaxWindow: 2, AutoUpdate: true})
	l.Register("collaborative", cf)

	l.AddFeedback(3, 2, 5, base.Add(time.Hour))
	res := l.TriggerUpdate(context.Background())
	if !res.Updated {
		t.Fatal("Updated = false")
	}

	// MaxWindow=2: the refit window keeps the two most recent ratings.
	window := cf.Window()
	if len(window) != 2 {
		t.Fatalf("window len = %d, want 2", len(window))
	}
	if window[0].ItemID != 2 {
		t.Errorf("newest window rating item = %d, want 2", window[0].ItemID)
	}
}

func TestHybridUpdateAdjustsCounters(t *testing.T) {
	catalog := map[int]models.Item{
		1: {ID: 1, Genres: []string{"action"}},
		2: {ID: 2, Genres: []string{"drama"}},
	}
	cf := oracle.NewCollaborative(catalog)
	cb := oracle.NewContentBased(catalog)
	pop := oracle.NewPopularity(oracle.PopularityConfig{}, catalog)
	hybrid := oracle.NewHybrid(oracle.HybridWeights{}, cf, cb, pop)

	seed := []models.Rating{{UserID: 1, ItemID: 1, Rating: 5, Timestamp: time.Now()}}
	if err := hybrid.Fit(context.Background(), seed); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	l := newTestLearner(DefaultConfig())
	l.Register("hybrid", hybrid)

	l.AddFeedback(2, 2, 5, time.Now())
	res := l.TriggerUpdate(context.Background())
	if !res.Updated {
		t.Fatal("Updated = false")
	}

	if got := pop.RatingCount(2); got != 1 {
		t.Errorf("popularity count for item 2 = %d, want 1 after incremental update", got)
	}
}

func TestHybridColdStartFitsFromFeedback(t *testing.T) {
	catalog := map[int]models.Item{
		1: {ID: 1, Genres: []string{"action"}},
		2: {ID: 2, Genres: []string{"drama"}},
	}
	cf := oracle.NewCollaborative(catalog)
	cb := oracle.NewContentBased(catalog)
	pop := oracle.NewPopularity(oracle.PopularityConfig{}, catalog)
	hybrid := oracle.NewHybrid(oracle.HybridWeights{}, cf, cb, pop)

	// Empty store at startup: nothing was ever fitted. The first drained
	// feedback batch must bring the whole family online.
	l := newTestLearner(DefaultConfig())
	l.Register("hybrid", hybrid)

	l.AddFeedback(1, 1, 5, time.Now())
	l.AddFeedback(2, 2, 4, time.Now())
	res := l.TriggerUpdate(context.Background())
	if !res.Updated {
		t.Fatal("Updated = false")
	}

	if !hybrid.IsReady() {
		t.Fatal("hybrid IsReady() = false after first feedback drain")
	}
	if !pop.IsReady() {
		t.Fatal("popularity IsReady() = false after first feedback drain")
	}

	preds, err := pop.Predict(context.Background(), 99, 5, false, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(preds) == 0 {
		t.Fatal("popularity served no predictions after cold-start update")
	}
}

func TestConcurrentAddFeedbackDuringDrain(t *testing.T) {
	l := newTestLearner(Config{BufferSize: 1000, AutoUpdate: true})
	l.Register("m", &mockTrainable{name: "m"})

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.AddFeedback(w, i+1, 4, time.Now())
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			l.TriggerUpdate(context.Background())
		}
	}()
	wg.Wait()

	final := l.TriggerUpdate(context.Background())
	drained := final.FeedbackCount
	// Nothing lost: buffered + previously drained must equal appended.
	stats := l.GetStats()
	if stats.BufferSize != 0 {
		t.Errorf("buffer size = %d after final drain, want 0", stats.BufferSize)
	}
	if drained > writers*perWriter {
		t.Errorf("final drain count %d exceeds total appends", drained)
	}
}
