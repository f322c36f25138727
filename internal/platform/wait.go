package platform

import (
	"context"
	"fmt"
	"time"
)

// WaitRange describes a growing poll interval: each wait starts at Min
// and multiplies by Factor up to Max, bounded overall by Timeout and
// optionally by MaxIterations.
type WaitRange struct {
	Min           time.Duration
	Max           time.Duration
	Timeout       time.Duration
	Factor        float64
	MaxIterations int
}

// DefaultWaitRange polls from 100ms with slow growth for up to 10s.
func DefaultWaitRange() WaitRange {
	return WaitRange{
		Min:     100 * time.Millisecond,
		Timeout: 10 * time.Second,
		Factor:  1.01,
	}
}

func (w WaitRange) normalized() WaitRange {
	if w.Min <= 0 {
		w.Min = 100 * time.Millisecond
	}
	if w.Max <= 0 {
		w.Max = 10 * w.Min
	}
	if w.Factor <= 1 {
		w.Factor = 1.01
	}
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
	return w
}

// PollWithBackoff calls check until it reports done, the range times
// out or the context is cancelled. The error from check propagates
// immediately.
func (p *Platform) PollWithBackoff(ctx context.Context, wait WaitRange, check func(ctx context.Context) (bool, error)) error {
	wait = wait.normalized()
	start := p.now()
	current := wait.Min
	for i := 0; wait.MaxIterations <= 0 || i < wait.MaxIterations; i++ {
		if elapsed := p.now().Sub(start); elapsed > wait.Timeout {
			return fmt.Errorf("platform: poll timed out after %s", elapsed)
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := p.Sleep(ctx, current); err != nil {
			return err
		}
		current = time.Duration(float64(current) * wait.Factor)
		if current > wait.Max {
			current = wait.Max
		}
	}
	return fmt.Errorf("platform: poll gave up after %d iterations", wait.MaxIterations)
}
