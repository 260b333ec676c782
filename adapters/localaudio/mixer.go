package localaudio

import (
	"math"
	"sync"
)

type mixClip struct {
	start   int64
	samples []float32
	onEnded func()
}

// mixer renders scheduled clips onto one mono timeline. The clock is the
// number of frames rendered so far.
type mixer struct {
	mu       sync.Mutex
	rate     int
	position int64
	nextID   uint64
	clips    map[uint64]*mixClip
}

func newMixer(rate int) *mixer {
	return &mixer{
		rate:  rate,
		clips: make(map[uint64]*mixClip),
	}
}

func (m *mixer) currentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.position) / float64(m.rate)
}

// add schedules samples to start at the given clock time and returns the clip id
func (m *mixer) add(samples []float32, at float64, onEnded func()) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.clips[m.nextID] = &mixClip{
		start:   int64(math.Round(at * float64(m.rate))),
		samples: samples,
		onEnded: onEnded,
	}
	return m.nextID
}

// remove drops a clip without ending it and reports whether it was playing
func (m *mixer) remove(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clips[id]
	delete(m.clips, id)
	return ok
}

func (m *mixer) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips = make(map[uint64]*mixClip)
}

// render fills out with the next frames and returns the callbacks of the
// clips that finished within them.
func (m *mixer) render(out []float32) []func() {
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.position
	to := from + int64(len(out))

	var ended []func()
	for id, clip := range m.clips {
		end := clip.start + int64(len(clip.samples))
		lo, hi := max(clip.start, from), min(end, to)
		for t := lo; t < hi; t++ {
			out[t-from] += clip.samples[t-clip.start]
		}
		if end <= to {
			delete(m.clips, id)
			if clip.onEnded != nil {
				ended = append(ended, clip.onEnded)
			}
		}
	}

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}

	m.position = to
	return ended
}
