package ircx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCause classifies why a wait finished unsuccessfully.
type ErrorCause int

const (
	CauseNone ErrorCause = iota
	// CauseMessage: a message matching an error pattern arrived.
	CauseMessage
	// CauseTimeout: no qualifying message arrived within the deadline.
	CauseTimeout
	// CauseDisconnected: the connection ended while waiting.
	CauseDisconnected
	// CauseCancelled: the wait's context was cancelled.
	CauseCancelled
	// CauseMultiple: several composed waits failed for different
	// reasons. Reserved for callers aggregating WaitResults; no single
	// wait produces it.
	CauseMultiple
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseMessage:
		return "message"
	case CauseTimeout:
		return "timeout"
	case CauseDisconnected:
		return "disconnected"
	case CauseCancelled:
		return "cancelled"
	case CauseMultiple:
		return "multiple"
	}
	return "unknown"
}

// ErrDisconnected is reported when the connection to the server is lost.
var ErrDisconnected = errors.New("lost connection to the server")

// WaitResult is the outcome of waiting for correlated IRC messages. Every
// wait and every command built on one produces a WaitResult; protocol
// errors and timeouts are data here, not panics or returned errors.
type WaitResult struct {
	// Success reports whether the expected messages arrived.
	Success bool
	// Value is an optional command-specific payload (e.g. *WhoisReply).
	Value any
	// Error is the offending server message when Cause is CauseMessage.
	Error *Message
	// Cause classifies the failure when Success is false.
	Cause ErrorCause
	// Messages holds the captured messages, in arrival order.
	Messages []Message
}

func newWaitResult(success bool, errMsg *Message, cause ErrorCause, captured []Message) *WaitResult {
	if cause == CauseNone && errMsg != nil {
		cause = CauseMessage
	}
	return &WaitResult{Success: success, Error: errMsg, Cause: cause, Messages: captured}
}

// Err converts an unsuccessful result into an error: ErrDisconnected for
// a lost connection, a *WaitError otherwise. A successful result converts
// to nil.
func (r *WaitResult) Err(prefix string) error {
	if r.Success {
		return nil
	}
	if r.Cause == CauseDisconnected {
		if prefix != "" {
			return fmt.Errorf("%s: %w", prefix, ErrDisconnected)
		}
		return ErrDisconnected
	}
	return &WaitError{Result: r, Prefix: prefix}
}

// WaitError wraps an unsuccessful WaitResult for callers that prefer an
// error over inspecting the result. The message names the numeric reply
// symbolically when known and appends the raw offending line.
type WaitError struct {
	Result *WaitResult
	Prefix string
}

func (e *WaitError) Error() string {
	var b strings.Builder
	if e.Prefix != "" {
		b.WriteString(e.Prefix + ": ")
	}
	if e.Result.Cause != CauseMessage || e.Result.Error == nil {
		b.WriteString("error cause: " + e.Result.Cause.String())
		return b.String()
	}
	m := *e.Result.Error
	if name, ok := replyName(m.Command); ok {
		b.WriteString(name + ": ")
	}
	if m.Sender.Nick != "" {
		b.WriteString(":" + m.Sender.String() + " ")
	}
	b.WriteString(m.Command)
	if len(m.Args) > 1 {
		b.WriteString(" " + strings.Join(m.Args[:len(m.Args)-1], " "))
	}
	if len(m.Args) > 0 {
		b.WriteString(" :" + m.Trailing())
	}
	return b.String()
}

// Wait describes one invocation of the wait engine.
type Wait struct {
	// Context cancels the wait early; the result then carries
	// CauseCancelled. Optional.
	Context context.Context
	// Sent gates the wait on the triggering command actually reaching
	// the wire (see Bot.SendCommand). The timeout clock starts, and
	// messages start being considered, only once Sent is closed.
	// Optional.
	Sent <-chan struct{}
	// Expected terminates the wait successfully: any single match for
	// WaitFor, one match per pattern for WaitForAll.
	Expected []Pattern
	// Errors terminates the wait unsuccessfully with CauseMessage.
	Errors []Pattern
	// Capture accumulates matching messages into the result without
	// terminating the wait.
	Capture []Pattern
	// CaptureMatches captures messages matching Expected instead of
	// Capture.
	CaptureMatches bool
	// Timeout overrides the bot's default timeout. Zero means the
	// default; a negative value disables the deadline.
	Timeout time.Duration
}

// waiter is one registered consumer of the inbound stream. Delivery is an
// unbuffered handoff: the dispatch cycle does not advance to the next
// line until every live waiter has taken the current one.
type waiter struct {
	msgs chan Message
	done chan struct{}
}

type pendingWait struct {
	bot      *Bot
	sess     *session
	w        Wait
	matchAll bool
	wt       *waiter
}

// WaitFor blocks until a message matches any expected pattern, an error
// pattern matches, the timeout elapses, the connection drops, or the
// context is cancelled. It never returns nil and never panics on protocol
// conditions.
func (b *Bot) WaitFor(w Wait) *WaitResult {
	return b.startWait(w, false).run()
}

// WaitForAll is WaitFor, but every expected pattern must be matched by
// some message before the wait succeeds. Arrival order does not matter;
// duplicate matches of an already satisfied pattern are ignored.
func (b *Bot) WaitForAll(w Wait) *WaitResult {
	return b.startWait(w, true).run()
}

// WaitForCh registers the wait immediately and completes it in the
// background. Because registration happens before WaitForCh returns, an
// event handler may arm a wait for a message that arrives directly after
// the line currently being dispatched.
func (b *Bot) WaitForCh(w Wait) <-chan *WaitResult {
	return b.startWait(w, false).runCh()
}

// WaitForAllCh is WaitForCh with WaitForAll semantics.
func (b *Bot) WaitForAllCh(w Wait) <-chan *WaitResult {
	return b.startWait(w, true).runCh()
}

// sendAndWait arms the wait, transmits the command, and blocks for the
// result. Registering the waiter before the command is written means a
// reply dispatched immediately after the write cannot slip past it; the
// Sent gate keeps messages that arrived before the write from being
// considered.
func (b *Bot) sendAndWait(w Wait, matchAll bool, command string, args ...string) (*WaitResult, error) {
	pw := b.startWait(w, matchAll)
	sent, err := b.SendCommand(command, args...)
	if err != nil {
		pw.remove()
		return nil, err
	}
	pw.w.Sent = sent
	return pw.run(), nil
}

func (b *Bot) startWait(w Wait, matchAll bool) *pendingWait {
	wt := &waiter{msgs: make(chan Message), done: make(chan struct{})}
	b.mu.Lock()
	sess := b.sess
	sess.waiters[wt] = struct{}{}
	b.mu.Unlock()
	return &pendingWait{bot: b, sess: sess, w: w, matchAll: matchAll, wt: wt}
}

func (pw *pendingWait) runCh() <-chan *WaitResult {
	ch := make(chan *WaitResult, 1)
	go func() {
		ch <- pw.run()
	}()
	return ch
}

func (pw *pendingWait) run() *WaitResult {
	b := pw.bot
	defer pw.remove()

	timeout := pw.w.Timeout
	if timeout == 0 {
		timeout = b.defaultTimeout
	}
	noDeadline := timeout < 0

	expected := append([]Pattern(nil), pw.w.Expected...)
	capture := pw.w.Capture
	if pw.w.CaptureMatches {
		capture = append([]Pattern(nil), pw.w.Expected...)
	}
	var captured []Message

	var ctxDone <-chan struct{}
	if pw.w.Context != nil {
		ctxDone = pw.w.Context.Done()
	}

	sentC := pw.w.Sent
	started := sentC == nil
	var deadline time.Time
	if started {
		deadline = b.now().Add(timeout)
	}

	for {
		var timer *time.Timer
		var timerC <-chan time.Time
		if started && !noDeadline {
			remaining := deadline.Sub(b.now())
			if remaining <= 0 {
				return newWaitResult(false, nil, CauseTimeout, captured)
			}
			timer = time.NewTimer(remaining)
			timerC = timer.C
		}

		var res *WaitResult
		select {
		case <-sentC:
			sentC = nil
			started = true
			deadline = b.now().Add(timeout)
		case m := <-pw.wt.msgs:
			if !started {
				// Sent may have closed between the previous select
				// and this delivery; a message that arrives after
				// the command was written must be considered.
				select {
				case <-sentC:
					sentC = nil
					started = true
					deadline = b.now().Add(timeout)
				default:
				}
			}
			if started {
				res = pw.observe(m, &expected, capture, &captured)
			}
		case <-pw.sess.closed:
			res = newWaitResult(false, nil, CauseDisconnected, captured)
		case <-ctxDone:
			res = newWaitResult(false, nil, CauseCancelled, captured)
		case <-timerC:
			return newWaitResult(false, nil, CauseTimeout, captured)
		}
		if timer != nil {
			timer.Stop()
		}
		if res != nil {
			return res
		}
	}
}

// observe applies one inbound message to the wait, returning a terminal
// result or nil to keep waiting.
func (pw *pendingWait) observe(m Message, expected *[]Pattern, capture []Pattern, captured *[]Message) *WaitResult {
	self := pw.bot.Nickname()
	if matchesAny(m, pw.w.Errors, self) {
		return newWaitResult(false, &m, CauseNone, *captured)
	}
	if matchesAny(m, capture, self) {
		*captured = append(*captured, m)
	}
	exp := *expected
	for i := len(exp) - 1; i >= 0; i-- {
		if exp[i].Matches(m, self) {
			if !pw.matchAll {
				return newWaitResult(true, nil, CauseNone, *captured)
			}
			exp = append(exp[:i], exp[i+1:]...)
		}
	}
	*expected = exp
	if len(exp) == 0 {
		return newWaitResult(true, nil, CauseNone, *captured)
	}
	return nil
}

// remove deregisters the waiter. Closing done releases the dispatch cycle
// if it is mid-handoff to this waiter, so a finished or cancelled wait
// can never stall dispatch.
func (pw *pendingWait) remove() {
	b := pw.bot
	b.mu.Lock()
	delete(pw.sess.waiters, pw.wt)
	b.mu.Unlock()
	close(pw.wt.done)
}
