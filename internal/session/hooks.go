package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/internal/module"
)

type hookFunc func(ctx context.Context) error

// runHook calls fn in its own goroutine under a budget derived from ctx.
// A hook that ignores its context is abandoned when the budget runs out;
// its goroutine finishes in the background.
func (o *Orchestrator) runHook(ctx context.Context, inst *module.Instance, label string, phase Phase, budget time.Duration, fn hookFunc) error {
	hctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	begin := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(hctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		select {
		case err = <-done:
		default:
			err = hctx.Err()
		}
	}
	elapsed := time.Since(begin)

	reason := ""
	switch {
	case err == nil:
	case errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		reason = "timeout"
		err = &TimeoutError{Module: label, InstanceID: inst.ID, Phase: phase, Budget: budget}
	default:
		reason = "error"
		err = &HookError{Module: label, InstanceID: inst.ID, Phase: phase, Err: err}
	}
	metrics.ObserveHook(string(phase), elapsed, reason)
	if err != nil {
		o.log.Warn().Err(err).
			Str("module_id", inst.Definition.ID).
			Str("instance_id", inst.ID).
			Str("phase", string(phase)).
			Dur("elapsed", elapsed).
			Msg("hook failed")
	}
	return err
}
