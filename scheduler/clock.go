package scheduler

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Task is a running repeating task.
type Task interface {
	// Stop prevents further runs. A run already in progress completes.
	Stop()
}

// Ticker starts repeating tasks.
type Ticker interface {
	Every(period time.Duration, fn func()) Task
}

// WallClock is the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time {
	return time.Now()
}

// TimeTicker runs tasks on a goroutine driven by time.Ticker.
type TimeTicker struct{}

func (TimeTicker) Every(period time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
