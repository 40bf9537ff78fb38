package pomodoro

import (
	"context"
	"time"
)

// Service applies timer operations against a Store using an injected clock.
type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current state, persisting a completed cycle.
func (s *Service) Get(ctx context.Context, userID string) (State, error) {
	st, _, err := s.store.Load(ctx, userID)
	if err != nil {
		return State{}, err
	}
	ticked, completed := st.Tick(s.now())
	if !completed {
		return ticked, nil
	}
	return s.update(ctx, userID, func(st State) (State, error) {
		next, _ := st.Tick(s.now())
		return next, nil
	})
}

func (s *Service) Start(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, userID, func(st State) (State, error) {
		now := s.now()
		st, _ = st.Tick(now)
		return st.Start(now), nil
	})
}

func (s *Service) Pause(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, userID, func(st State) (State, error) {
		return st.Pause(s.now()), nil
	})
}

func (s *Service) Reset(ctx context.Context, userID string) (State, error) {
	return s.update(ctx, userID, func(st State) (State, error) {
		return st.Reset(), nil
	})
}

func (s *Service) SetMode(ctx context.Context, userID string, mode Mode) (State, error) {
	if !mode.Valid() {
		return State{}, ErrInvalidMode
	}
	return s.update(ctx, userID, func(st State) (State, error) {
		return st.SetMode(mode)
	})
}

func (s *Service) UpdateDuration(ctx context.Context, userID string, mode Mode, minutes int) (State, error) {
	if _, err := DefaultState().UpdateDuration(mode, minutes); err != nil {
		return State{}, err
	}
	return s.update(ctx, userID, func(st State) (State, error) {
		st, _ = st.Tick(s.now())
		return st.UpdateDuration(mode, minutes)
	})
}

func (s *Service) update(ctx context.Context, userID string, fn func(State) (State, error)) (State, error) {
	st, err := s.store.Update(ctx, userID, fn)
	if err != nil {
		return State{}, err
	}
	// Running timers report the live remaining time.
	st, _ = st.Tick(s.now())
	return st, nil
}
