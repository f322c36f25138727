package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jamienicol/xbench/internal/exception"
	"github.com/jamienicol/xbench/internal/platform"
)

// Actions groups a story's browser interactions under one breadcrumb
// and logs the time spent. Stories open one per logical step and close
// it with the step's error:
//
//	a := run.Actions("login")
//	defer a.Close(&err)
type Actions struct {
	name   string
	run    *Run
	scope  *exception.Scope
	start  time.Time
	active bool
}

// Actions opens a named interaction scope on the run.
func (r *Run) Actions(name string) *Actions {
	if name == "" {
		panic("runner: actions need a name")
	}
	a := &Actions{
		name:   name,
		run:    r,
		scope:  r.annotator.Info("action: " + name),
		start:  r.runner.platform.Now(),
		active: true,
	}
	r.logger.Info("action start", "name", name)
	return a
}

// Close pops the breadcrumb and logs the elapsed time. Call it on
// every exit path.
func (a *Actions) Close(errp *error) {
	a.active = false
	a.scope.Close(errp)
	a.run.logger.Info("action end",
		"name", a.name, "duration", a.run.runner.platform.Now().Sub(a.start))
}

func (a *Actions) mustBeActive() {
	if !a.active {
		panic("runner: actions used outside their scope")
	}
}

// JS evaluates script in the run's browser.
func (a *Actions) JS(ctx context.Context, script string, timeout time.Duration, args ...any) (any, error) {
	a.mustBeActive()
	if script == "" {
		return nil, errors.New("runner: empty script")
	}
	trace.SpanFromContext(ctx).AddEvent("js",
		trace.WithAttributes(attribute.String("action", a.name)))
	return a.run.browser.JS(ctx, script, timeout, args...)
}

// Navigate loads url in the run's browser.
func (a *Actions) Navigate(ctx context.Context, url string) error {
	a.mustBeActive()
	trace.SpanFromContext(ctx).AddEvent("navigate",
		trace.WithAttributes(attribute.String("url", url)))
	return a.run.browser.ShowURL(ctx, url)
}

// Wait sleeps for d.
func (a *Actions) Wait(ctx context.Context, d time.Duration) error {
	a.mustBeActive()
	return a.run.runner.platform.Sleep(ctx, d)
}

// WaitJSCondition polls script with backoff until it returns true. The
// script must contain a return statement and return a boolean.
func (a *Actions) WaitJSCondition(ctx context.Context, script string, wait platform.WaitRange) error {
	a.mustBeActive()
	if !strings.Contains(script, "return") {
		return fmt.Errorf("runner: missing return statement in wait script: %s", script)
	}
	return a.run.runner.platform.PollWithBackoff(ctx, wait,
		func(ctx context.Context) (bool, error) {
			result, err := a.run.browser.JS(ctx, script, wait.Timeout)
			if err != nil {
				return false, err
			}
			done, ok := result.(bool)
			if !ok {
				return false, fmt.Errorf("runner: wait script returned %T, want bool", result)
			}
			return done, nil
		})
}
