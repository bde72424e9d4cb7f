package buffer

import (
	"sync"
	"sync/atomic"
)

// recentErrorsCapacity bounds the recent_errors ring buffer.
const recentErrorsCapacity = 100

// Stats holds the Command Buffer's monotonic counters plus the bounded
// recent_errors ring. Counters use relaxed atomics; a Snapshot is not
// transactional across counters, only each counter is consistent with
// itself.
type Stats struct {
	submitted uint64
	completed uint64
	rejected  uint64
	cancelled uint64

	mu           sync.Mutex
	recentErrors []string
	errorsHead   int
}

// StatsSnapshot is a point-in-time read of Stats.
type StatsSnapshot struct {
	Submitted    uint64
	Completed    uint64
	Rejected     uint64
	Cancelled    uint64
	InFlight     int
	Capacity     int
	RecentErrors []string
}

func (s *Stats) recordSubmitted() { atomic.AddUint64(&s.submitted, 1) }
func (s *Stats) recordCompleted() { atomic.AddUint64(&s.completed, 1) }
func (s *Stats) recordRejected() { atomic.AddUint64(&s.rejected, 1) }
func (s *Stats) recordCancelled() { atomic.AddUint64(&s.cancelled, 1) }

func (s *Stats) recordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recentErrors == nil {
		s.recentErrors = make([]string, 0, recentErrorsCapacity)
	}

	if len(s.recentErrors) < recentErrorsCapacity {
		s.recentErrors = append(s.recentErrors, msg)
		return
	}

	s.recentErrors[s.errorsHead] = msg
	s.errorsHead = (s.errorsHead + 1) % recentErrorsCapacity
}

// Snapshot returns a copy of the current counters and recent errors in
// chronological order (oldest first).
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	ordered := make([]string, len(s.recentErrors))
	if len(s.recentErrors) < recentErrorsCapacity {
		copy(ordered, s.recentErrors)
	} else {
		copy(ordered, s.recentErrors[s.errorsHead:])
		copy(ordered[recentErrorsCapacity-s.errorsHead:], s.recentErrors[:s.errorsHead])
	}
	s.mu.Unlock()

	return StatsSnapshot{
		Submitted:    atomic.LoadUint64(&s.submitted),
		Completed:    atomic.LoadUint64(&s.completed),
		Rejected:     atomic.LoadUint64(&s.rejected),
		Cancelled:    atomic.LoadUint64(&s.cancelled),
		RecentErrors: ordered,
	}
}
