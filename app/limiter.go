package app

import "time"

// FrameLimiter paces a loop to a fixed frame rate. It sleeps for most of
// the remaining frame time and spins for the rest.
type FrameLimiter struct {
	DesiredFps    int
	frameTime     time.Duration
	LastFrameTime time.Time
	DidSleep      bool
	DidSpin       bool
}

// NewFrameLimiter returns a limiter for fps frames per second. fps <= 0
// disables limiting.
func NewFrameLimiter(fps int) *FrameLimiter {
	l := &FrameLimiter{DesiredFps: fps, LastFrameTime: time.Now()}
	if fps > 0 {
		l.frameTime = time.Second / time.Duration(fps)
	}
	return l
}

// Wait blocks until a frame time passed since the previous Wait.
func (l *FrameLimiter) Wait() {
	l.DidSleep = false
	l.DidSpin = false
	if l.frameTime == 0 {
		l.LastFrameTime = time.Now()
		return
	}
	now := time.Now()
	remaining := l.frameTime - now.Sub(l.LastFrameTime)
	deadline := now.Add(remaining)
	if remaining > time.Millisecond {
		sleep := remaining / 4 * 3
		if remaining < 30*time.Millisecond {
			sleep = remaining / 8
		}
		time.Sleep(sleep)
		l.DidSleep = true
	}
	for time.Now().Before(deadline) {
		// spin
		l.DidSpin = true
	}
	l.LastFrameTime = time.Now()
}
