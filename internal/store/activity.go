package store

import (
	"sync"
	"time"

	"github.com/frankmark94/channel-play-pen/internal/metrics"
	"github.com/frankmark94/channel-play-pen/internal/models"
)

// DefaultActivityLimit is the number of records kept before the oldest are evicted.
const DefaultActivityLimit = 1000

// ActivityLog is a bounded ring of the most recent operational records.
type ActivityLog struct {
	// appendMu serialises append and notification so every subscriber
	// observes records in insertion order.
	appendMu sync.Mutex

	mu      sync.RWMutex
	buf     []models.ActivityRecord
	head    int // index of the oldest record
	size    int
	subs    map[uint64]func(models.ActivityRecord)
	nextSub uint64
	now     Clock
}

// ActivityOption configures an ActivityLog.
type ActivityOption func(*ActivityLog)

// WithActivityLimit sets the maximum number of records retained.
func WithActivityLimit(n int) ActivityOption {
	return func(l *ActivityLog) {
		if n > 0 {
			l.buf = make([]models.ActivityRecord, n)
		}
	}
}

// WithActivityClock sets the time source for record timestamps.
func WithActivityClock(now Clock) ActivityOption {
	return func(l *ActivityLog) {
		l.now = now
	}
}

// NewActivityLog creates an empty activity log.
func NewActivityLog(opts ...ActivityOption) *ActivityLog {
	l := &ActivityLog{
		buf:  make([]models.ActivityRecord, DefaultActivityLimit),
		subs: make(map[uint64]func(models.ActivityRecord)),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns an ID and timestamp to rec, stores it and notifies subscribers
// synchronously. Subscribers must not call Append.
func (l *ActivityLog) Append(rec models.ActivityRecord) models.ActivityRecord {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	now := l.now()
	rec.ID = newULID(now)
	rec.Timestamp = now

	l.mu.Lock()
	limit := len(l.buf)
	if l.size < limit {
		l.buf[(l.head+l.size)%limit] = rec
		l.size++
	} else {
		l.buf[l.head] = rec
		l.head = (l.head + 1) % limit
	}
	subs := make([]func(models.ActivityRecord), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	metrics.ActivityRecords.WithLabelValues(string(rec.Kind)).Inc()

	for _, fn := range subs {
		fn(rec)
	}
	return rec
}

// Recent returns up to limit records, newest first.
func (l *ActivityLog) Recent(limit int) []models.ActivityRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit > l.size {
		limit = l.size
	}
	if limit <= 0 {
		return []models.ActivityRecord{}
	}

	out := make([]models.ActivityRecord, limit)
	n := len(l.buf)
	for i := 0; i < limit; i++ {
		out[i] = l.buf[(l.head+l.size-1-i)%n]
	}
	return out
}

// Len returns the number of retained records.
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Limit returns the maximum number of retained records.
func (l *ActivityLog) Limit() int {
	return len(l.buf)
}

// Subscribe registers fn to be called after every append. The returned
// function removes the subscription.
func (l *ActivityLog) Subscribe(fn func(models.ActivityRecord)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}
