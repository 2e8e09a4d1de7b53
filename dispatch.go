package ircx

import (
	"bufio"
	"strings"
)

// Handler receives inbound messages on the reader goroutine. Handlers
// must not block; use Go for anything long-running.
type Handler func(m Message)

func handlerKey(command string) string {
	return replyCode(strings.ToUpper(command))
}

// HandleAny registers a handler called for every inbound message.
func (b *Bot) HandleAny(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anyHandlers = append(b.anyHandlers, h)
}

// HandleCommand registers a handler for one command, given by name
// ("PRIVMSG") or numeric reply name or code ("RPL_WELCOME", "001").
func (b *Bot) HandleCommand(command string, h Handler) {
	key := handlerKey(command)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmdHandlers[key] = append(b.cmdHandlers[key], h)
}

// HandleReply is HandleCommand for numeric replies.
func (b *Bot) HandleReply(name string, h Handler) {
	b.HandleCommand(name, h)
}

// readLoop consumes lines from the connection until it fails or closes.
func (b *Bot) readLoop(sess *session) error {
	scanner := bufio.NewScanner(sess.conn)
	scanner.Buffer(make([]byte, MaxLineSize), 8*MaxLineSize)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := decodeLine(scanner.Bytes(), b.charmap)
		m, err := ParseMessage(line)
		if err != nil {
			b.log.Warn().Err(err).Str("line", line).Msg("discarding unparsable line")
			continue
		}
		b.log.Debug().Str("line", line).Msg("recv")
		b.dispatch(sess, m)
	}
	return scanner.Err()
}

// dispatch runs one inbound message through bookkeeping, built-in and
// user handlers, and finally the registered waiters. Waiters go last so
// state updated by handlers (user lists, whois capture) is visible by
// the time a blocked caller resumes.
func (b *Bot) dispatch(sess *session, m Message) {
	b.mu.Lock()
	sess.current = m
	if sess.capturing {
		sess.captured = append(sess.captured, m)
	}
	anyHandlers := append([]Handler(nil), b.anyHandlers...)
	cmdHandlers := append([]Handler(nil), b.cmdHandlers[strings.ToUpper(m.Command)]...)
	waiters := make([]*waiter, 0, len(sess.waiters))
	for w := range sess.waiters {
		waiters = append(waiters, w)
	}
	b.mu.Unlock()

	b.trackSender(sess, m)
	if h, ok := builtinHandlers[strings.ToUpper(m.Command)]; ok {
		h(b, sess, m)
	}

	for _, h := range anyHandlers {
		h(m)
	}
	for _, h := range cmdHandlers {
		h(m)
	}

	for _, w := range waiters {
		select {
		case w.msgs <- m:
		case <-w.done:
		}
	}
}

// StartCapturing begins buffering inbound messages, to be collected
// with StopCapturing. With includeCurrent, the message currently being
// dispatched is included in the buffer.
func (b *Bot) StartCapturing(includeCurrent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sess.capturing = true
	b.sess.captured = nil
	if includeCurrent {
		b.sess.captured = append(b.sess.captured, b.sess.current)
	}
}

// StopCapturing ends capturing and returns the buffered messages.
func (b *Bot) StopCapturing() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sess.capturing = false
	captured := b.sess.captured
	b.sess.captured = nil
	return captured
}

func (b *Bot) IsCapturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.capturing
}
