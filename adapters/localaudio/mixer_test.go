package localaudio

import (
	"math"
	"testing"
)

func constant(n int, v float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return samples
}

func TestMixerClock(t *testing.T) {
	m := newMixer(100)
	out := make([]float32, 50)

	if got := m.currentTime(); got != 0 {
		t.Fatalf("currentTime() = %v, want 0", got)
	}
	m.render(out)
	m.render(out)
	if got := m.currentTime(); got != 1 {
		t.Errorf("currentTime() = %v, want 1", got)
	}
}

func TestMixerPlacesClipAtStartTime(t *testing.T) {
	m := newMixer(100)
	ended := 0
	// Starts at frame 5, lasts 10 frames.
	m.add(constant(10, 0.5), 0.05, func() { ended++ })

	out := make([]float32, 10)
	if fns := m.render(out); len(fns) != 0 {
		t.Fatalf("clip ended after the first block")
	}
	for i, v := range out {
		want := float32(0)
		if i >= 5 {
			want = 0.5
		}
		if v != want {
			t.Errorf("frame %d = %v, want %v", i, v, want)
		}
	}

	fns := m.render(out)
	if len(fns) != 1 {
		t.Fatalf("render returned %d end callbacks, want 1", len(fns))
	}
	fns[0]()
	if ended != 1 {
		t.Errorf("onEnded called %d times, want 1", ended)
	}
	for i, v := range out {
		want := float32(0)
		if i < 5 {
			want = 0.5
		}
		if v != want {
			t.Errorf("frame %d = %v, want %v", 10+i, v, want)
		}
	}
}

func TestMixerSumsAndClamps(t *testing.T) {
	m := newMixer(100)
	m.add(constant(4, 0.75), 0, nil)
	m.add(constant(4, 0.75), 0, nil)
	m.add(constant(4, -0.25), 0.02, nil)

	out := make([]float32, 4)
	m.render(out)
	want := []float32{1, 1, 1, 1}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestMixerRemove(t *testing.T) {
	m := newMixer(100)
	id := m.add(constant(4, 0.5), 0, func() {
		t.Error("onEnded called for a removed clip")
	})

	if !m.remove(id) {
		t.Fatal("remove() = false for a playing clip")
	}
	if m.remove(id) {
		t.Error("remove() = true for a removed clip")
	}

	out := make([]float32, 4)
	if fns := m.render(out); len(fns) != 0 {
		t.Errorf("render returned %d end callbacks, want 0", len(fns))
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("frame %d = %v, want silence", i, v)
		}
	}
}
