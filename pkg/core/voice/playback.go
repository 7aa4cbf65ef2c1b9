package voice

import (
	"log/slog"
	"sync"
	"time"
)

// Output is an audio sink with its own monotonic clock.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration
	// Play schedules buf to start at the given clock time.
	Play(buf Buffer, at time.Duration) (Playback, error)
}

// Playback is a handle to one scheduled buffer.
type Playback interface {
	// Stop silences the buffer immediately. Safe to call more than once.
	Stop()
	// Done is closed when the buffer finishes or is stopped.
	Done() <-chan struct{}
}

// Scheduler chains decoded buffers back to back on a single output timeline.
//
// Each buffer starts at max(now, nextStart) so buffers that arrive while earlier
// audio is still playing are queued with no gap and no overlap.
type Scheduler struct {
	out    Output
	logger *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	seq       uint64
	inflight  map[uint64]Playback

	idle chan struct{}
}

// NewScheduler creates a scheduler on top of out.
func NewScheduler(out Output, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:      out,
		logger:   logger,
		inflight: make(map[uint64]Playback),
		idle:     make(chan struct{}, 1),
	}
}

// Enqueue schedules buf and returns its start time on the output clock.
func (s *Scheduler) Enqueue(buf Buffer) (time.Duration, error) {
	s.mu.Lock()
	start := s.out.Now()
	if s.nextStart > start {
		start = s.nextStart
	}
	h, err := s.out.Play(buf, start)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.nextStart = start + buf.Duration()
	s.seq++
	id := s.seq
	s.inflight[id] = h
	s.mu.Unlock()

	go s.watch(id, h)
	return start, nil
}

func (s *Scheduler) watch(id uint64, h Playback) {
	<-h.Done()

	s.mu.Lock()
	_, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	empty := ok && len(s.inflight) == 0
	s.mu.Unlock()

	if empty {
		s.signalIdle()
	}
}

// Flush stops everything in flight and resets the timeline so the next
// buffer starts immediately. Raises the idle signal if anything was playing.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	stopped := s.inflight
	s.inflight = make(map[uint64]Playback)
	s.nextStart = 0
	s.mu.Unlock()

	for _, h := range stopped {
		h.Stop()
	}
	if len(stopped) > 0 {
		s.logger.Debug("playback flushed", "stopped", len(stopped))
		s.signalIdle()
	}
}

// Pending returns the number of buffers still scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// NextStartTime returns the clock time at which the next buffer would chain.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Idle delivers a signal each time the in-flight set drains. Signals coalesce.
func (s *Scheduler) Idle() <-chan struct{} {
	return s.idle
}

func (s *Scheduler) signalIdle() {
	select {
	case s.idle <- struct{}{}:
	default:
	}
}
