package playback

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/metrics"
)

type fakeClip struct {
	at      float64
	onEnded func()
	stopped bool
}

func (c *fakeClip) Stop() { c.stopped = true }

type fakeSpeaker struct {
	mu      sync.Mutex
	now     float64
	clips   []*fakeClip
	playErr error
}

func (s *fakeSpeaker) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSpeaker) advance(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now += d
}

func (s *fakeSpeaker) Play(_ *entities.AudioBuffer, at float64, onEnded func()) (repositories.PlayingClip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return nil, s.playErr
	}
	c := &fakeClip{at: at, onEnded: onEnded}
	s.clips = append(s.clips, c)
	return c, nil
}

func (s *fakeSpeaker) Close() error { return nil }

// buffer returns a mono 24kHz buffer lasting seconds
func buffer(seconds float64) *entities.AudioBuffer {
	return &entities.AudioBuffer{
		SampleRate: 24000,
		Channels:   [][]float32{make([]float32, int(seconds*24000))},
	}
}

func newTestScheduler(t *testing.T, speaker *fakeSpeaker) *Scheduler {
	return NewScheduler(speaker, zaptest.NewLogger(t), metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestScheduleBackToBack(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	durations := []float64{0.5, 0.25, 1, 0.125}
	var clips []Clip
	for _, d := range durations {
		clip, err := s.Schedule(buffer(d))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clips = append(clips, clip)
		speaker.advance(0.1)
	}

	for i := 1; i < len(clips); i++ {
		if clips[i].StartTime < clips[i-1].End() {
			t.Errorf("clip %d starts at %v before previous end %v", i, clips[i].StartTime, clips[i-1].End())
		}
		if clips[i].StartTime != clips[i-1].End() {
			t.Errorf("clip %d should follow without a gap: start %v, previous end %v", i, clips[i].StartTime, clips[i-1].End())
		}
	}
	if got, want := s.NextStartTime(), clips[len(clips)-1].End(); got != want {
		t.Errorf("expected next start %v, got %v", want, got)
	}
	if len(s.Active()) != len(durations) {
		t.Errorf("expected %d active clips, got %d", len(durations), len(s.Active()))
	}
}

func TestScheduleStartsAtClockAfterGap(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	if _, err := s.Schedule(buffer(0.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	speaker.advance(2)

	clip, err := s.Schedule(buffer(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.StartTime != 2 {
		t.Errorf("expected start at clock 2, got %v", clip.StartTime)
	}
}

func TestNaturalEndRemovesClip(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	first, _ := s.Schedule(buffer(0.5))
	s.Schedule(buffer(0.5))

	speaker.clips[0].onEnded()

	active := s.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 active clip, got %d", len(active))
	}
	if active[0].ID == first.ID {
		t.Error("ended clip is still tracked")
	}
}

func TestInterrupt(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	for i := 0; i < 3; i++ {
		s.Schedule(buffer(1))
	}
	speaker.advance(0.5)

	s.Interrupt()

	if len(s.Active()) != 0 {
		t.Errorf("expected no active clip after interrupt, got %d", len(s.Active()))
	}
	if s.NextStartTime() != 0 {
		t.Errorf("expected schedule reset to 0, got %v", s.NextStartTime())
	}
	for i, c := range speaker.clips {
		if !c.stopped {
			t.Errorf("clip %d was not stopped", i)
		}
	}

	// late natural end of a stopped clip is harmless
	speaker.clips[0].onEnded()

	clip, err := s.Schedule(buffer(0.25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.StartTime < speaker.CurrentTime() {
		t.Errorf("clip after interrupt starts at %v before clock %v", clip.StartTime, speaker.CurrentTime())
	}
}

func TestPlayFailureDoesNotAdvance(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	s.Schedule(buffer(1))
	next := s.NextStartTime()

	speaker.playErr = errors.New("device lost")
	if _, err := s.Schedule(buffer(1)); err == nil {
		t.Fatal("expected play error")
	}
	if s.NextStartTime() != next {
		t.Errorf("failed play moved the schedule from %v to %v", next, s.NextStartTime())
	}
	if len(s.Active()) != 1 {
		t.Errorf("expected 1 active clip, got %d", len(s.Active()))
	}
}

func TestStop(t *testing.T) {
	speaker := &fakeSpeaker{}
	s := newTestScheduler(t, speaker)

	s.Schedule(buffer(1))
	s.Stop()
	s.Stop()

	if !speaker.clips[0].stopped {
		t.Error("clip was not stopped")
	}
	if _, err := s.Schedule(buffer(1)); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestScheduleEmptyBuffer(t *testing.T) {
	s := newTestScheduler(t, &fakeSpeaker{})
	if _, err := s.Schedule(&entities.AudioBuffer{SampleRate: 24000}); err == nil {
		t.Error("expected error for empty buffer")
	}
	if _, err := s.Schedule(nil); err == nil {
		t.Error("expected error for nil buffer")
	}
}
