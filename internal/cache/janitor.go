package cache

import "time"

// Purger is implemented by caches that can drop expired entries.
type Purger interface {
	Purge() int
}

// Janitor periodically purges expired entries from registered caches.
type Janitor struct {
	caches []Purger
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitor() *Janitor {
	return &Janitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register adds a cache to the purge cycle. Not safe to call after Start.
func (j *Janitor) Register(c Purger) {
	j.caches = append(j.caches, c)
}

// Start launches the purge loop in a goroutine.
func (j *Janitor) Start(interval time.Duration) {
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range j.caches {
				c.Purge()
			}
		case <-j.stop:
			return
		}
	}
}

// Stop halts the purge loop and waits for it to exit.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
