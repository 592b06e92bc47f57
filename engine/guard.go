package engine

import (
	"wavebind/logger"
)

// LoadGuard tracks nested document-load scopes. Work deferred while any
// scope is open runs in FIFO order when the outermost scope closes.
type LoadGuard struct {
	depth    int
	deferred []func()
}

// Enter opens a load scope.
func (g *LoadGuard) Enter() {
	g.depth++
}

// Exit closes a load scope and flushes deferred work once none remain open.
func (g *LoadGuard) Exit() {
	if g.depth == 0 {
		logger.Warn("Load guard exited without a matching enter")
		return
	}
	g.depth--
	if g.depth > 0 {
		return
	}

	// Work queued by a flushed action joins the end of the queue.
	for len(g.deferred) > 0 && g.depth == 0 {
		fn := g.deferred[0]
		g.deferred = g.deferred[1:]
		g.run(fn)
	}
}

// Active reports whether a load is in progress.
func (g *LoadGuard) Active() bool {
	return g.depth > 0
}

// Do runs fn now, or queues it when a load is in progress.
func (g *LoadGuard) Do(fn func()) {
	if g.Active() {
		g.deferred = append(g.deferred, fn)
		return
	}
	fn()
}

// Pending returns how many actions are queued.
func (g *LoadGuard) Pending() int {
	return len(g.deferred)
}

func (g *LoadGuard) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Deferred action failed", "panic", r)
		}
	}()
	fn()
}
