package executor

import (
	"context"
	"errors"
	"time"

	"snippet-runner/internal/sandbox"
)

// Guard races every step of one execution against a single deadline.
// The budget is shared: time spent compiling is not available to the run.
type Guard struct {
	ctx      context.Context
	deadline time.Time
}

// NewGuard starts the budget now. The returned cancel must be called.
func NewGuard(parent context.Context, budget time.Duration) (*Guard, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, budget)
	deadline, _ := ctx.Deadline()
	return &Guard{ctx: ctx, deadline: deadline}, cancel
}

// Context is cancelled when the budget runs out.
func (g *Guard) Context() context.Context { return g.ctx }

// Remaining returns what is left of the budget.
func (g *Guard) Remaining() time.Duration {
	if d := time.Until(g.deadline); d > 0 {
		return d
	}
	return 0
}

// Run starts a step and waits for whichever comes first: the process exiting
// or the deadline. On expiry the process is terminated and reaped before Run
// returns ErrTimeout. A process that exited on its own before the kill landed
// counts as finished.
func (g *Guard) Run(start func() (*sandbox.Process, error)) (sandbox.ExitOutcome, error) {
	if err := g.ctx.Err(); err != nil {
		return sandbox.ExitOutcome{}, g.expired()
	}

	p, err := start()
	if err != nil {
		return sandbox.ExitOutcome{}, err
	}

	select {
	case <-p.Done():
		return p.Wait(), nil
	case <-g.ctx.Done():
		p.Terminate()
		out := p.Wait()
		if !out.Killed {
			return out, nil
		}
		return out, g.expired()
	}
}

func (g *Guard) expired() error {
	if errors.Is(g.ctx.Err(), context.Canceled) {
		return ErrCanceled
	}
	return ErrTimeout
}
