// logging.go - structured logging and the "log once per transition" gate
//
// Errors that recur every audio callback (ring buffer under/overrun, device
// retry) must not flood the log (spec §4.1, §7). logGate tracks whether the
// current failure condition has already been reported and only logs on the
// edge from ok to failing.

package bridge

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is the package-wide structured logger, in the style of
// doismellburning-samoyed's use of charmbracelet/log across its cmd/ tools.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "pcmbridge",
})

type logGate struct {
	mu      sync.Mutex
	tripped map[string]bool
}

// Once logs key as a warning and then calls fn the first time key
// transitions into a failing state, and suppresses both for the same key
// until Clear is called.
func (g *logGate) Once(key string, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped == nil {
		g.tripped = make(map[string]bool)
	}
	if g.tripped[key] {
		return
	}
	g.tripped[key] = true
	Logger.Warn(key)
	fn()
}

// Clear resets a key so the next failure logs again.
func (g *logGate) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped != nil {
		delete(g.tripped, key)
	}
}
