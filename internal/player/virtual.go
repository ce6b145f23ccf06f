package player

import (
	"sync"
	"time"
)

// Virtual simulates playback against the wall clock. While playing,
// CurrentTime advances in real time up to the configured duration.
type Virtual struct {
	mu       sync.Mutex
	playing  bool
	position float64
	markedAt time.Time
	duration float64
	now      func() time.Time
}

func NewVirtual(duration float64) *Virtual {
	return &Virtual{
		duration: duration,
		now:      time.Now,
	}
}

// NewVirtualWithClock is used by tests to drive playback with a fake
// clock.
func NewVirtualWithClock(duration float64, now func() time.Time) *Virtual {
	return &Virtual{
		duration: duration,
		now:      now,
	}
}

func (v *Virtual) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		return
	}
	v.playing = true
	v.markedAt = v.now()
}

func (v *Virtual) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return
	}
	v.position = v.currentLocked()
	v.playing = false
}

func (v *Virtual) SeekTo(seconds float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if v.duration > 0 && seconds > v.duration {
		seconds = v.duration
	}
	v.position = seconds
	v.markedAt = v.now()
}

func (v *Virtual) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentLocked()
}

func (v *Virtual) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

func (v *Virtual) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *Virtual) currentLocked() float64 {
	if !v.playing {
		return v.position
	}
	pos := v.position + v.now().Sub(v.markedAt).Seconds()
	if v.duration > 0 && pos > v.duration {
		return v.duration
	}
	return pos
}
