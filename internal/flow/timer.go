package flow

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TimerInfo describes one pending timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduledAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Remaining   string    `json:"remaining"`
}

type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// SimpleTimer runs one-shot callbacks with time.AfterFunc. It is used for the delayed
// handoff of approved call scripts.
type SimpleTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
	nextID int64
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	slog.Debug("Creating SimpleTimer")
	return &SimpleTimer{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter schedules fn to run once after delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("nil timer callback")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	now := time.Now()

	t.timers[id] = &timerEntry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
	}
	t.timers[id].timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		slog.Debug("SimpleTimer executing scheduled function", "id", id)
		fn()
	})

	slog.Debug("SimpleTimer ScheduleAfter succeeded", "id", id, "delay", delay)
	return id, nil
}

// Cancel stops a scheduled function by ID. Unknown ids are ignored.
func (t *SimpleTimer) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer Cancel succeeded", "id", id)
	}
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Info("SimpleTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
}

// ListActive returns the pending timers ordered by expiry.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	result := make([]TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		remaining := entry.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, TimerInfo{
			ID:          id,
			ScheduledAt: entry.scheduledAt,
			ExpiresAt:   entry.expiresAt,
			Remaining:   remaining.String(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	return result
}
