package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseDownloading  Phase = "downloading"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// Event is one progress record handed to observers. Total <= 0 means the
// total is unknown.
type Event struct {
	TransferID string    `json:"transfer_id"`
	Timestamp  time.Time `json:"timestamp"`
	Phase      Phase     `json:"phase"`
	Downloaded int64     `json:"downloaded"`
	Total      int64     `json:"total"`
	Rate       float64   `json:"rate"`
	ETASeconds float64   `json:"eta_seconds"`
	Message    string    `json:"message,omitempty"`
}

// Observer receives progress events. Notify is always called from a single
// goroutine at a time, so implementations need no internal locking.
type Observer interface {
	Notify(ev Event)
}

const DefaultInterval = 100 * time.Millisecond

// Tracker owns the shared download counters and fans progress out to its
// observers at a bounded rate. Workers only ever call Add; emission happens
// on the tracker's own ticker so observers are never flooded. The terminal
// completed/error event is emitted synchronously from Finish and is never
// dropped.
type Tracker struct {
	Interval time.Duration

	id         string
	observers  []Observer
	total      atomic.Int64
	downloaded atomic.Int64

	startOnce  sync.Once
	finishOnce sync.Once
	started    time.Time
	done       chan struct{}
	stopped    chan struct{}
}

func NewTracker(id string, observers ...Observer) *Tracker {
	return &Tracker{
		Interval:  DefaultInterval,
		id:        id,
		observers: observers,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (t *Tracker) SetTotal(n int64) {
	t.total.Store(n)
}

func (t *Tracker) Add(n int64) {
	t.downloaded.Add(n)
}

func (t *Tracker) Downloaded() int64 {
	return t.downloaded.Load()
}

func (t *Tracker) Total() int64 {
	return t.total.Load()
}

// Start emits the initializing event and begins the periodic emission loop.
func (t *Tracker) Start() {
	t.startOnce.Do(func() {
		t.started = time.Now()
		t.emit(PhaseInitializing, 0, "")
		go t.loop()
	})
}

// Finish stops the loop and synchronously emits the terminal event: completed
// when err is nil, error otherwise. Safe to call once after Start.
func (t *Tracker) Finish(err error) {
	t.finishOnce.Do(func() {
		if t.started.IsZero() {
			t.started = time.Now()
		}
		select {
		case <-t.done:
		default:
			close(t.done)
		}
		select {
		case <-t.stopped:
		case <-time.After(time.Second):
		}
		elapsed := time.Since(t.started).Seconds()
		var avgRate float64
		if elapsed > 0 {
			avgRate = float64(t.downloaded.Load()) / elapsed
		}
		if err != nil {
			t.emit(PhaseError, avgRate, err.Error())
		} else {
			t.emit(PhaseCompleted, avgRate, "")
		}
	})
}

func (t *Tracker) loop() {
	defer close(t.stopped)
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastBytes := t.downloaded.Load()
	lastTime := time.Now()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			current := t.downloaded.Load()
			if current == lastBytes {
				continue
			}
			elapsed := time.Since(lastTime).Seconds()
			var rate float64
			if elapsed > 0 {
				rate = float64(current-lastBytes) / elapsed
			}
			t.emit(PhaseDownloading, rate, "")
			lastBytes = current
			lastTime = time.Now()
		}
	}
}

func (t *Tracker) emit(phase Phase, rate float64, message string) {
	ev := Event{
		TransferID: t.id,
		Timestamp:  time.Now(),
		Phase:      phase,
		Downloaded: t.downloaded.Load(),
		Total:      t.total.Load(),
		Rate:       rate,
		ETASeconds: eta(t.total.Load(), t.downloaded.Load(), rate),
		Message:    message,
	}
	for _, o := range t.observers {
		o.Notify(ev)
	}
}

// eta estimates remaining seconds from the current rate, flooring the rate at
// one byte/sec so it never divides by zero. Unknown totals yield zero.
func eta(total, downloaded int64, rate float64) float64 {
	if total <= 0 || downloaded >= total {
		return 0
	}
	if rate < 1 {
		rate = 1
	}
	return float64(total-downloaded) / rate
}
