package lifecycle

import (
	"sync"

	"github.com/activetigger/atstress/internal/common/logging"
	"github.com/activetigger/atstress/internal/common/runcontext"
)

// Guard pairs an acquired remote resource with its release. Release runs at most once no matter how many exit
// paths call it, and never returns an error: a failed release is logged as a warning and kept for reporting.
type Guard struct {
	Kind string
	Id   string

	release func(ctx *runcontext.Context) error
	once    sync.Once
	mu      sync.Mutex
	done    bool
	err     error
}

func NewGuard(kind, id string, release func(ctx *runcontext.Context) error) *Guard {
	return &Guard{Kind: kind, Id: id, release: release}
}

func (g *Guard) Release(ctx *runcontext.Context) {
	g.once.Do(func() {
		err := g.release(ctx)
		if err != nil {
			logging.WithStacktrace(ctx.Log, err).
				WithField(g.Kind, g.Id).
				Warnf("failed to delete %s %s", g.Kind, g.Id)
		} else {
			ctx.Log.Debugf("deleted %s %s", g.Kind, g.Id)
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		g.done = true
		g.err = err
	})
}

// Released returns whether Release has completed, and the error it ended with.
func (g *Guard) Released() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done, g.err
}
