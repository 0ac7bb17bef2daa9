package login

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Cancel never blocks and may be called
// more than once, including from inside the task itself.
type Handle interface {
	Cancel()
}

// Scheduler runs repeating and delayed tasks
type Scheduler interface {
	// Every runs fn every interval until the handle is cancelled
	Every(interval time.Duration, fn func()) Handle
	// After runs fn once after d unless the handle is cancelled first
	After(d time.Duration, fn func()) Handle
}

// TickerScheduler is the Scheduler backed by time.Ticker and time.Timer
type TickerScheduler struct{}

type tickerHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

func (h *tickerHandle) cancelled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Every starts a goroutine that calls fn on each tick. The goroutine exits
// once the handle is cancelled; a tick that races with Cancel is dropped.
func (TickerScheduler) Every(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				if h.cancelled() {
					return
				}
				fn()
			}
		}
	}()
	return h
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() {
	h.timer.Stop()
}

// After schedules fn with time.AfterFunc
func (TickerScheduler) After(d time.Duration, fn func()) Handle {
	return timerHandle{timer: time.AfterFunc(d, fn)}
}
