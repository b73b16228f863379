package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/dbtest"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/notification"
	"production-tracker-backend/internal/store"
)

// mockStore overrides the four queries the monitor uses. Any other call panics.
type mockStore struct {
	store.Store
	ExpiredQuarantinesFunc func(ctx context.Context, now time.Time) ([]model.ProductObject, error)
	ReleaseQuarantineFunc  func(ctx context.Context, id int64, now time.Time) (bool, error)
	OverdueObjectsFunc     func(ctx context.Context, now time.Time) ([]model.ProductObject, error)
	MarkOverdueFunc        func(ctx context.Context, id int64, now time.Time) (bool, error)
}

func (m *mockStore) ExpiredQuarantines(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
	return m.ExpiredQuarantinesFunc(ctx, now)
}

func (m *mockStore) ReleaseQuarantine(ctx context.Context, id int64, now time.Time) (bool, error) {
	return m.ReleaseQuarantineFunc(ctx, id, now)
}

func (m *mockStore) OverdueObjects(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
	return m.OverdueObjectsFunc(ctx, now)
}

func (m *mockStore) MarkOverdue(ctx context.Context, id int64, now time.Time) (bool, error) {
	return m.MarkOverdueFunc(ctx, id, now)
}

type recordingSink struct {
	mu     sync.Mutex
	events []notification.Event
}

func (s *recordingSink) Publish(_ context.Context, ev notification.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Topic+":"+ev.SerialNumber)
	}
	return out
}

func TestService_ScanOnce(t *testing.T) {
	process := int64(7)
	ms := &mockStore{
		ExpiredQuarantinesFunc: func(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
			return []model.ProductObject{
				{ID: 1, SerialNumber: "Q-1", CurrentProcessID: &process},
				{ID: 2, SerialNumber: "Q-2", CurrentProcessID: &process},
			}, nil
		},
		ReleaseQuarantineFunc: func(ctx context.Context, id int64, now time.Time) (bool, error) {
			// Q-2 was moved by a station between the query and the update.
			return id == 1, nil
		},
		OverdueObjectsFunc: func(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
			return []model.ProductObject{{ID: 3, SerialNumber: "O-3"}}, nil
		},
		MarkOverdueFunc: func(ctx context.Context, id int64, now time.Time) (bool, error) {
			return true, nil
		},
	}
	sink := &recordingSink{}
	service := NewService(config.MonitorConfig{Enabled: true}, ms, sink, nil, logger.Nop())

	released, overdue, err := service.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, overdue)
	assert.Equal(t, []string{"quarantine_released:Q-1", "object_overdue:O-3"}, sink.topics())
	assert.Equal(t, process, sink.events[0].ProcessID)
	assert.Zero(t, sink.events[1].ProcessID)
}

func TestService_ScanOnceStopsOnStoreError(t *testing.T) {
	ms := &mockStore{
		ExpiredQuarantinesFunc: func(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
			return nil, errors.New("db down")
		},
	}
	sink := &recordingSink{}
	service := NewService(config.MonitorConfig{Enabled: true}, ms, sink, nil, logger.Nop())

	_, _, err := service.ScanOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sink.topics())
}

func TestService_RunDisabled(t *testing.T) {
	service := NewService(config.MonitorConfig{Enabled: false}, &mockStore{}, nil, nil, logger.Nop())

	done := make(chan struct{})
	go func() {
		service.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled monitor should return immediately")
	}
}

func TestService_ScanOnceAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	s := store.NewGormStore(dbtest.Open(t))
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	product := &model.Product{Name: "Cell"}
	require.NoError(t, s.Create(ctx, product))
	for _, obj := range []*model.ProductObject{
		{SerialNumber: "EXPIRED", FullSN: "EXPIRED", ProductID: product.ID, QuarantineTime: &past},
		{SerialNumber: "WAITING", FullSN: "WAITING", ProductID: product.ID, QuarantineTime: &future},
		{SerialNumber: "LATE", FullSN: "LATE", ProductID: product.ID, MaxTimeDeadline: &past},
		{SerialNumber: "DONE", FullSN: "DONE", ProductID: product.ID, MaxTimeDeadline: &past, End: true},
	} {
		require.NoError(t, s.Create(ctx, obj))
	}

	sink := &recordingSink{}
	service := NewService(config.MonitorConfig{Enabled: true}, s, sink, nil, logger.Nop())
	service.clock = func() time.Time { return now }

	released, overdue, err := service.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, overdue)
	assert.ElementsMatch(t, []string{"quarantine_released:EXPIRED", "object_overdue:LATE"}, sink.topics())

	expired, err := s.FindProductObjectByFullSN(ctx, "EXPIRED")
	require.NoError(t, err)
	assert.Nil(t, expired.QuarantineTime)
	late, err := s.FindProductObjectByFullSN(ctx, "LATE")
	require.NoError(t, err)
	assert.True(t, late.OverdueNotified)

	// A second pass finds nothing new.
	released, overdue, err = service.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Zero(t, overdue)
}
