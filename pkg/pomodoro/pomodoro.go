// Package pomodoro keeps a per-user focus timer whose remaining time is
// derived from a stored start timestamp, so it survives reconnects and
// process restarts.
package pomodoro

import (
	"errors"
	"fmt"
	"time"
)

type Mode string

const (
	ModeWork       Mode = "work"
	ModeShortBreak Mode = "shortBreak"
	ModeLongBreak  Mode = "longBreak"
)

// Valid reports whether m is a known timer mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeWork, ModeShortBreak, ModeLongBreak:
		return true
	}
	return false
}

const (
	MinMinutes = 1
	MaxMinutes = 180
)

var (
	ErrInvalidMode     = errors.New("invalid pomodoro mode")
	ErrInvalidDuration = fmt.Errorf("duration must be between %d and %d minutes", MinMinutes, MaxMinutes)
)

// DefaultDurations holds the out-of-the-box length of each mode in seconds.
var DefaultDurations = map[Mode]int{
	ModeWork:       25 * 60,
	ModeShortBreak: 5 * 60,
	ModeLongBreak:  15 * 60,
}

// State is the persisted timer. TimeLeft and CustomTimes are in seconds;
// StartTimestamp is unix milliseconds and is set only while running.
type State struct {
	Mode           Mode         `json:"mode"`
	TimeLeft       int          `json:"timeLeft"`
	IsRunning      bool         `json:"isRunning"`
	CustomTimes    map[Mode]int `json:"customTimes"`
	StartTimestamp *int64       `json:"startTimestamp"`
}

// DefaultState is a stopped work timer with default durations.
func DefaultState() State {
	times := make(map[Mode]int, len(DefaultDurations))
	for m, d := range DefaultDurations {
		times[m] = d
	}
	return State{Mode: ModeWork, TimeLeft: times[ModeWork], CustomTimes: times}
}

// Total is the configured length of the current mode in seconds.
func (s State) Total() int {
	return s.CustomTimes[s.Mode]
}

// normalize repairs records written by older versions or edited by hand.
func (s State) normalize() State {
	if !s.Mode.Valid() {
		s.Mode = ModeWork
	}
	times := make(map[Mode]int, len(DefaultDurations))
	for m, d := range DefaultDurations {
		times[m] = d
		if v, ok := s.CustomTimes[m]; ok && v >= MinMinutes*60 && v <= MaxMinutes*60 {
			times[m] = v
		}
	}
	s.CustomTimes = times
	if s.TimeLeft < 0 || s.TimeLeft > s.Total() {
		s.TimeLeft = s.Total()
	}
	if !s.IsRunning || s.StartTimestamp == nil {
		s.IsRunning = false
		s.StartTimestamp = nil
	}
	return s
}

// Tick recomputes TimeLeft from the start timestamp. When the countdown has
// reached zero the cycle is complete: the timer stops and rewinds to the
// full duration of the current mode. The second result reports completion.
func (s State) Tick(now time.Time) (State, bool) {
	if !s.IsRunning || s.StartTimestamp == nil {
		return s, false
	}
	elapsed := int(now.Sub(time.UnixMilli(*s.StartTimestamp)) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := max(0, s.Total()-elapsed)
	if remaining == 0 {
		return s.Reset(), true
	}
	s.TimeLeft = remaining
	return s, false
}

// Start resumes the countdown from TimeLeft. Starting a running timer is a no-op.
func (s State) Start(now time.Time) State {
	if s.IsRunning {
		return s
	}
	if s.TimeLeft <= 0 {
		s.TimeLeft = s.Total()
	}
	start := now.Add(-time.Duration(s.Total()-s.TimeLeft) * time.Second).UnixMilli()
	s.StartTimestamp = &start
	s.IsRunning = true
	return s
}

// Pause freezes TimeLeft at its current value.
func (s State) Pause(now time.Time) State {
	s, _ = s.Tick(now)
	s.IsRunning = false
	s.StartTimestamp = nil
	return s
}

// Reset stops the timer and rewinds it to the mode's full duration.
func (s State) Reset() State {
	s.IsRunning = false
	s.StartTimestamp = nil
	s.TimeLeft = s.Total()
	return s
}

// SetMode switches mode, stopping and rewinding the timer.
func (s State) SetMode(m Mode) (State, error) {
	if !m.Valid() {
		return s, ErrInvalidMode
	}
	s.Mode = m
	return s.Reset(), nil
}

// UpdateDuration changes the length of mode m. When m is the current mode
// the timer stops and takes the new duration.
func (s State) UpdateDuration(m Mode, minutes int) (State, error) {
	if !m.Valid() {
		return s, ErrInvalidMode
	}
	if minutes < MinMinutes || minutes > MaxMinutes {
		return s, ErrInvalidDuration
	}
	times := make(map[Mode]int, len(s.CustomTimes))
	for k, v := range s.CustomTimes {
		times[k] = v
	}
	times[m] = minutes * 60
	s.CustomTimes = times
	if s.Mode == m {
		s = s.Reset()
	}
	return s, nil
}
