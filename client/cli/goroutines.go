package cli

import "sync"

// goroutines tracks the goroutines of a command. Once closed no new
// goroutine is started, so Close can wait while callbacks of other
// goroutines may still call Go.
type goroutines struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Go runs fn in a new goroutine. It returns false without running fn after
// Close was called.
func (g *goroutines) Go(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		fn()
	}()

	return true
}

// Close waits for all started goroutines.
func (g *goroutines) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()
}
