package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/subsheet/internal/recalc"
)

// AwaitTimeout bounds how long Gate.Await waits for a resolver call.
const AwaitTimeout = 2 * time.Second

// Call is one blocked Gate.Resolve invocation.
type Call struct {
	Req   recalc.Request
	reply chan reply
}

type reply struct {
	value any
	err   error
}

// Return completes the call with v.
func (c *Call) Return(v any) { c.reply <- reply{value: v} }

// Fail completes the call with err.
func (c *Call) Fail(err error) { c.reply <- reply{err: err} }

// Gate is a recalc.Resolver whose calls block until the test completes
// them, so a test decides the order async results arrive in.
//
// Resolve is safe from any goroutine; Await must only be called from the
// test goroutine.
type Gate struct {
	calls chan *Call
	held  []*Call
}

var _ recalc.Resolver = (*Gate)(nil)

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{calls: make(chan *Call, 64)}
}

// Resolve parks the request until Return or Fail is called on it, or ctx ends.
func (g *Gate) Resolve(ctx context.Context, req recalc.Request) (any, error) {
	c := &Call{Req: req, reply: make(chan reply, 1)}
	select {
	case g.calls <- c:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Await returns the pending call for (rowID, fieldID), failing the test if
// none arrives within AwaitTimeout. Calls for other cells stay held.
func (g *Gate) Await(t testing.TB, rowID, fieldID string) *Call {
	t.Helper()
	deadline := time.After(AwaitTimeout)
	for {
		for i, c := range g.held {
			if c.Req.Row.ID == rowID && c.Req.Field.ID == fieldID {
				g.held = append(g.held[:i], g.held[i+1:]...)
				return c
			}
		}
		select {
		case c := <-g.calls:
			g.held = append(g.held, c)
		case <-deadline:
			t.Fatalf("no resolver call for %s/%s within %s", rowID, fieldID, AwaitTimeout)
			return nil
		}
	}
}

// Pending returns how many calls have arrived and not been awaited.
func (g *Gate) Pending() int { return len(g.held) + len(g.calls) }
