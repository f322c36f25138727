package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jamienicol/xbench/internal/exception"
)

var (
	errParse   = errors.New("parse failed")
	errConnect = errors.New("connect failed")
)

// TestCaptureSwallowsMatchingError ensures a capture scope converts a
// matching error into an entry instead of propagating it.
func TestCaptureSwallowsMatchingError(t *testing.T) {
	a := exception.New(false)

	err := func() (err error) {
		defer a.Capture("parsing entry").Only(exception.Is(errParse)).Close(&err)
		return fmt.Errorf("entry one: %w", errParse)
	}()

	if err != nil {
		t.Fatalf("expected captured error, got %v", err)
	}
	if a.IsSuccess() {
		t.Fatal("expected annotator to record the failure")
	}
	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].InfoStack; len(got) != 1 || got[0] != "parsing entry" {
		t.Fatalf("unexpected info stack %v", got)
	}
}

// TestCapturePropagatesNonMatchingError ensures only declared error
// kinds are swallowed; others pass through unmodified in meaning.
func TestCapturePropagatesNonMatchingError(t *testing.T) {
	a := exception.New(false)

	err := func() (err error) {
		defer a.Capture("parsing entry").Only(exception.Is(errParse)).Close(&err)
		return errConnect
	}()

	if !errors.Is(err, errConnect) {
		t.Fatalf("expected errConnect to propagate, got %v", err)
	}
	if !a.IsSuccess() {
		t.Fatalf("non-matching error must not be recorded, got %v", a.Entries())
	}
	if len(a.InfoStack()) != 0 {
		t.Fatal("breadcrumbs must be popped on the error path")
	}
}

// TestIndependentCaptures mirrors parsing two config entries: both
// fail, both are reported, neither blocks the other.
func TestIndependentCaptures(t *testing.T) {
	a := exception.New(false)
	for i := 0; i < 2; i++ {
		func() {
			var err error
			defer a.Capture(fmt.Sprintf("entry %d", i)).Close(&err)
			err = fmt.Errorf("bad entry %d: %w", i, errParse)
		}()
	}
	if len(a.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(a.Entries()))
	}
}

// TestInfoScopeAnnotatesWithoutCapturing verifies info scopes attach
// breadcrumbs to escaping errors but never swallow them.
func TestInfoScopeAnnotatesWithoutCapturing(t *testing.T) {
	a := exception.New(false)

	err := func() (err error) {
		defer a.Info("outer", "inner").Close(&err)
		return errConnect
	}()
	if !errors.Is(err, errConnect) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
	if !a.IsSuccess() {
		t.Fatal("info scope must not record entries")
	}

	// Recording the escaped error keeps the breadcrumbs from the scope
	// it crossed, not the (now empty) current stack.
	a.Append(err)
	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0].InfoStack
	if len(got) != 2 || got[0] != "outer" || got[1] != "inner" {
		t.Fatalf("unexpected info stack %v", got)
	}
}

// TestAssertSuccess returns nil when clean and one batch error
// otherwise.
func TestAssertSuccess(t *testing.T) {
	a := exception.New(false)
	if err := a.AssertSuccess("runs failed"); err != nil {
		t.Fatalf("expected nil on success, got %v", err)
	}

	a.Append(errParse)
	a.Append(errConnect)
	err := a.AssertSuccess("%d checks failed", 2)
	var multi *exception.MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("expected MultiError, got %T", err)
	}
	if len(multi.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(multi.Entries))
	}
}

// TestExtendNestedPrependsStack verifies nested extension merges the
// parent's breadcrumbs in front of child entries.
func TestExtendNestedPrependsStack(t *testing.T) {
	child := exception.New(false)
	func() {
		var err error
		defer child.Capture("child step").Close(&err)
		err = errParse
	}()

	parent := exception.New(false)
	scope := parent.Info("merging results")
	parent.Extend(child, true)
	scope.Close(nil)

	entries := parent.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0].InfoStack
	if len(got) != 2 || got[0] != "merging results" || got[1] != "child step" {
		t.Fatalf("unexpected merged stack %v", got)
	}
}

// TestMultiErrorReabsorbed verifies appending a MultiError adds its
// entries individually rather than one opaque entry.
func TestMultiErrorReabsorbed(t *testing.T) {
	child := exception.New(false)
	child.Append(errParse)
	child.Append(errConnect)
	batch := child.AssertSuccess("child failed")

	parent := exception.New(false)
	parent.Append(batch)
	if len(parent.Entries()) != 2 {
		t.Fatalf("expected 2 re-absorbed entries, got %d", len(parent.Entries()))
	}
}

// TestThrowModePanics verifies debug mode re-panics instead of
// accumulating.
func TestThrowModePanics(t *testing.T) {
	a := exception.New(true)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic in throw mode")
		}
	}()
	a.Append(errParse)
}

// TestInterruptNeverAccumulated verifies an interrupt aborts via panic
// and leaves no entry behind.
func TestInterruptNeverAccumulated(t *testing.T) {
	a := exception.New(false)
	defer func() {
		if r := recover(); r != exception.ErrInterrupt {
			t.Fatalf("expected ErrInterrupt panic, got %v", r)
		}
		if !a.IsSuccess() {
			t.Fatal("interrupt must not be recorded")
		}
	}()
	a.Append(fmt.Errorf("while waiting: %w", exception.ErrInterrupt))
}

// TestCaptureScopeDoesNotSwallowInterrupt verifies capture scopes let
// interrupts escape.
func TestCaptureScopeDoesNotSwallowInterrupt(t *testing.T) {
	a := exception.New(false)
	err := func() (err error) {
		defer a.Capture("quitting").Close(&err)
		return exception.ErrInterrupt
	}()
	if !exception.IsInterrupt(err) {
		t.Fatalf("expected interrupt to propagate, got %v", err)
	}
}
