// Package playback schedules decoded response clips back to back on a
// speaker clock so consecutive chunks of a reply play without gaps.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/metrics"
)

// ErrStopped is returned when scheduling on a stopped scheduler
var ErrStopped = errors.New("playback scheduler stopped")

// Clip describes one scheduled buffer on the speaker clock, in seconds
type Clip struct {
	ID        uint64
	StartTime float64
	Duration  float64
}

// End is the clock time the clip finishes at
func (c Clip) End() float64 {
	return c.StartTime + c.Duration
}

type activeClip struct {
	clip   Clip
	handle repositories.PlayingClip
}

// Scheduler plays clips on one speaker. Each clip starts at the later of
// the current clock and the end of the previously scheduled clip.
type Scheduler struct {
	mu      sync.Mutex
	speaker repositories.Speaker
	next    float64
	seq     uint64
	active  map[uint64]activeClip
	stopped bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewScheduler creates a scheduler for speaker with the clock origin at 0
func NewScheduler(speaker repositories.Speaker, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		speaker: speaker,
		active:  make(map[uint64]activeClip),
		logger:  logger,
		metrics: m,
	}
}

// Schedule queues buffer right after the previously scheduled clip, or
// immediately when the speaker clock has already passed that point.
func (s *Scheduler) Schedule(buffer *entities.AudioBuffer) (Clip, error) {
	if buffer.Length() == 0 {
		return Clip{}, fmt.Errorf("schedule: empty buffer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Clip{}, ErrStopped
	}

	s.seq++
	clip := Clip{
		ID:        s.seq,
		StartTime: math.Max(s.speaker.CurrentTime(), s.next),
		Duration:  buffer.Duration(),
	}

	// Play never calls onEnded synchronously, so holding the lock is safe.
	handle, err := s.speaker.Play(buffer, clip.StartTime, func() { s.ended(clip.ID) })
	if err != nil {
		return Clip{}, fmt.Errorf("failed to play clip %d: %w", clip.ID, err)
	}

	s.next = clip.End()
	s.active[clip.ID] = activeClip{clip: clip, handle: handle}
	s.metrics.RecordClipScheduled(clip.Duration)

	s.logger.Debug("Clip scheduled",
		zap.Uint64("clipID", clip.ID),
		zap.Float64("start", clip.StartTime),
		zap.Float64("duration", clip.Duration))

	return clip, nil
}

// Interrupt stops every scheduled clip and rewinds the schedule to 0, so
// the next clip starts at the current clock.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := s.stopAllLocked()
	s.metrics.RecordInterruption()
	s.logger.Info("Playback interrupted", zap.Int("stoppedClips", stopped))
}

// Stop stops every clip and refuses further scheduling. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.stopAllLocked()
}

// Active returns the clips that have not finished yet, in schedule order
func (s *Scheduler) Active() []Clip {
	s.mu.Lock()
	defer s.mu.Unlock()

	clips := make([]Clip, 0, len(s.active))
	for _, a := range s.active {
		clips = append(clips, a.clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].ID < clips[j].ID })
	return clips
}

// NextStartTime is the earliest time the next clip may start
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *Scheduler) stopAllLocked() int {
	n := len(s.active)
	for id, a := range s.active {
		a.handle.Stop()
		delete(s.active, id)
	}
	s.next = 0
	return n
}
