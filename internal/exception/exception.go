// Package exception collects recoverable failures with info-stack
// breadcrumbs so independent sub-operations can fail without aborting
// their siblings.
//
// An [Annotator] accumulates entries; each entry pairs the original
// error with a call-stack trace and the human-readable breadcrumbs
// that were active when it was recorded. Scopes push breadcrumbs
// ([Annotator.Info]) or additionally swallow a declared set of error
// kinds ([Annotator.Capture]). [Annotator.AssertSuccess] is the single
// point that turns an accumulated batch into one fatal error.
package exception

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// ErrInterrupt marks a user-initiated abort (SIGINT). It is never
// accumulated: [Annotator.Append] panics with it so the process can
// unwind and exit immediately. Only the top-level command recovers it.
var ErrInterrupt = errors.New("interrupted")

// IsInterrupt reports whether err is or wraps ErrInterrupt.
func IsInterrupt(err error) bool {
	return errors.Is(err, ErrInterrupt)
}

// Matcher decides whether a capture scope swallows an error.
type Matcher func(error) bool

// AnyError matches every non-nil error.
func AnyError(err error) bool { return err != nil }

// Is returns a Matcher that matches errors wrapping target.
func Is(target error) Matcher {
	return func(err error) bool { return errors.Is(err, target) }
}

// Entry is one recorded failure.
type Entry struct {
	Trace     []string
	Err       error
	InfoStack []string
}

// MultiError represents a whole batch of accumulated failures. It is
// returned by [Annotator.AssertSuccess] and re-absorbed entry by entry
// when appended to a parent Annotator.
type MultiError struct {
	Message string
	Entries []Entry
}

func (m *MultiError) Error() string {
	if len(m.Entries) == 0 {
		return m.Message
	}
	msgs := make([]string, 0, len(m.Entries))
	for _, entry := range m.Entries {
		msgs = append(msgs, entry.Err.Error())
	}
	return fmt.Sprintf("%s: %s", m.Message, strings.Join(msgs, "; "))
}

// annotated wraps an error with the info stack that was active where
// it first crossed a scope boundary, so the breadcrumbs survive until
// a parent Annotator records it.
type annotated struct {
	err       error
	infoStack []string
}

func (a *annotated) Error() string { return a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }

// Annotator accumulates failures. IsSuccess holds iff no entry was
// recorded. The zero value is not usable; construct with New.
//
// Annotator is not safe for concurrent use: the benchmark executes
// strictly sequentially.
type Annotator struct {
	entries   []Entry
	infoStack []string
	throw     bool
}

// New returns an empty Annotator. When throw is set (debug mode),
// Append re-panics the error instead of accumulating it.
func New(throw bool) *Annotator {
	return &Annotator{throw: throw}
}

// Throw reports whether the annotator propagates errors immediately.
func (a *Annotator) Throw() bool { return a.throw }

// IsSuccess reports whether no failure has been recorded.
func (a *Annotator) IsSuccess() bool { return len(a.entries) == 0 }

// Entries returns the recorded failures in append order.
func (a *Annotator) Entries() []Entry { return a.entries }

// InfoStack returns the currently active breadcrumbs.
func (a *Annotator) InfoStack() []string {
	return append([]string(nil), a.infoStack...)
}

// Scope is an open info or capture scope. Close it with Close on every
// exit path, typically via defer with a named error return.
type Scope struct {
	annotator *Annotator
	prevDepth int
	capture   bool
	matchers  []Matcher
	closed    bool
}

// Info opens a breadcrumb-only scope: errors pass through unmodified
// but carry the labels when later recorded.
func (a *Annotator) Info(labels ...string) *Scope {
	return a.push(labels, false)
}

// Capture opens a scope that swallows matching errors at Close,
// converting them into entries instead of propagating. With no
// matchers declared, every error is swallowed.
func (a *Annotator) Capture(labels ...string) *Scope {
	return a.push(labels, true)
}

func (a *Annotator) push(labels []string, capture bool) *Scope {
	s := &Scope{
		annotator: a,
		prevDepth: len(a.infoStack),
		capture:   capture,
	}
	a.infoStack = append(a.infoStack, labels...)
	return s
}

// Only restricts a capture scope to the declared matchers. Errors that
// match none of them propagate unmodified.
func (s *Scope) Only(matchers ...Matcher) *Scope {
	s.matchers = matchers
	return s
}

// Close pops the scope's breadcrumbs and resolves *errp. A capture
// scope records matching errors and clears *errp; any other error is
// annotated with the breadcrumbs active inside the scope and left for
// the caller. Breadcrumbs are popped on every path. errp may be nil.
func (s *Scope) Close(errp *error) {
	if s.closed {
		panic("exception: scope closed twice")
	}
	s.closed = true
	stack := s.annotator.InfoStack()
	s.annotator.infoStack = s.annotator.infoStack[:s.prevDepth]
	if errp == nil || *errp == nil {
		return
	}
	err := *errp
	if s.capture && s.matches(err) {
		s.annotator.appendWithStack(err, stack)
		*errp = nil
		return
	}
	// Attach the deepest info stack once; outer scopes keep it.
	var ann *annotated
	if !errors.As(err, &ann) {
		*errp = &annotated{err: err, infoStack: stack}
	}
}

func (s *Scope) matches(err error) bool {
	if IsInterrupt(err) {
		// Interrupts are never captured.
		return false
	}
	var multi *MultiError
	if errors.As(err, &multi) {
		return true
	}
	if len(s.matchers) == 0 {
		return true
	}
	for _, match := range s.matchers {
		if match(err) {
			return true
		}
	}
	return false
}

// Append records err with the currently active breadcrumbs (or the
// ones attached by the scope the error escaped from). A nil err is a
// no-op. Interrupts panic immediately; in throw mode the original
// error is re-panicked after logging.
func (a *Annotator) Append(err error) {
	if err == nil {
		return
	}
	a.appendWithStack(err, a.InfoStack())
}

func (a *Annotator) appendWithStack(err error, stack []string) {
	if IsInterrupt(err) {
		panic(ErrInterrupt)
	}
	var multi *MultiError
	if errors.As(err, &multi) {
		// Re-absorb a nested batch entry by entry.
		for _, entry := range multi.Entries {
			merged := append(append([]string(nil), stack...), entry.InfoStack...)
			a.entries = append(a.entries, Entry{entry.Trace, entry.Err, merged})
		}
		if a.throw {
			panic(err)
		}
		return
	}
	var ann *annotated
	if errors.As(err, &ann) {
		stack = ann.infoStack
		err = ann.err
	}
	trace := strings.Split(strings.TrimRight(string(debug.Stack()), "\n"), "\n")
	a.entries = append(a.entries, Entry{Trace: trace, Err: err, InfoStack: stack})
	slog.Debug("intermediate failure", "err", err)
	if a.throw {
		panic(err)
	}
}

// Extend copies another annotator's entries into this one. With nested
// set, the current breadcrumbs are prepended to each copied entry.
func (a *Annotator) Extend(other *Annotator, nested bool) {
	if other == a {
		return
	}
	if !nested {
		a.entries = append(a.entries, other.entries...)
		return
	}
	for _, entry := range other.entries {
		merged := append(a.InfoStack(), entry.InfoStack...)
		a.entries = append(a.entries, Entry{entry.Trace, entry.Err, merged})
	}
}

// AssertSuccess logs every recorded failure and returns one MultiError
// representing the whole batch, or nil when nothing was recorded.
func (a *Annotator) AssertSuccess(format string, args ...any) error {
	if a.IsSuccess() {
		return nil
	}
	a.Log(slog.Default())
	return &MultiError{
		Message: fmt.Sprintf(format, args...),
		Entries: a.entries,
	}
}

// Log writes a grouped error report: entries sharing an info stack are
// reported together, traces at debug level only.
func (a *Annotator) Log(logger *slog.Logger) {
	if a.IsSuccess() {
		return
	}
	logger.Error(fmt.Sprintf("%d error(s) occurred:", len(a.entries)))
	keys, groups := a.groupedEntries()
	for _, key := range keys {
		if key != "" {
			logger.Error("info: " + key)
		}
		for _, entry := range groups[key] {
			logger.Error(fmt.Sprintf("  - %v", entry.Err))
			logger.Debug(strings.Join(entry.Trace, "\n"))
		}
	}
}

// groupedEntries partitions entries by their joined info stack,
// preserving first-seen order.
func (a *Annotator) groupedEntries() ([]string, map[string][]Entry) {
	keys := make([]string, 0, len(a.entries))
	groups := make(map[string][]Entry, len(a.entries))
	for _, entry := range a.entries {
		key := strings.Join(entry.InfoStack, " > ")
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], entry)
	}
	return keys, groups
}

// ErrorMessages returns the message of every recorded failure.
func (a *Annotator) ErrorMessages() []string {
	msgs := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		msgs = append(msgs, entry.Err.Error())
	}
	return msgs
}

// ToJSON returns a serializable view of all entries.
func (a *Annotator) ToJSON() []map[string]any {
	out := make([]map[string]any, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, map[string]any{
			"title":      entry.Err.Error(),
			"info_stack": entry.InfoStack,
			"trace":      entry.Trace,
		})
	}
	return out
}
