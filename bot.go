// Package ircx is an IRC client library built around waiting: commands
// like Join and Whois send their messages and block until the server's
// responses arrive, and outbound traffic is paced so the bot never trips
// server-side flood protection.
package ircx

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
	"gopkg.in/tomb.v2"
)

var ErrAlreadyConnected = errors.New("already connected")

type Option func(*Bot)

// Logger sets the bot's logger. The default discards everything.
func Logger(log zerolog.Logger) Option {
	return func(b *Bot) { b.log = log }
}

// Charmap sets a legacy single-byte encoding for the wire. The default
// is UTF-8.
func Charmap(cm *charmap.Charmap) Option {
	return func(b *Bot) { b.charmap = cm }
}

// DefaultTimeout sets the timeout applied to waits that do not specify
// their own.
func DefaultTimeout(d time.Duration) Option {
	return func(b *Bot) { b.defaultTimeout = d }
}

// Dialer replaces the dialer used by Connect.
func Dialer(d *net.Dialer) Option {
	return func(b *Bot) { b.dialer = d }
}

// TLSConfig makes Connect dial with TLS.
func TLSConfig(cfg *tls.Config) Option {
	return func(b *Bot) { b.tlsConfig = cfg }
}

// RequestCaps sets the IRCv3 capabilities requested during registration.
func RequestCaps(caps ...string) Option {
	return func(b *Bot) { b.requestCaps = caps }
}

// DelayMessages enables or disables pacing of non-PRIVMSG traffic.
func DelayMessages(enabled bool) Option {
	return func(b *Bot) { b.delayMessages = enabled }
}

// MessageDelay tunes the pacing of non-PRIVMSG traffic: each
// consecutive send adds multiplier to the delay, capped at max; the
// consecutive count resets after window of quiet.
func MessageDelay(multiplier, max, window time.Duration) Option {
	return func(b *Bot) {
		b.delayMultiplier, b.maxDelay, b.consecutiveTimeout = multiplier, max, window
	}
}

// DelayPrivmsgs enables or disables per-target pacing of PRIVMSG and
// NOTICE traffic.
func DelayPrivmsgs(enabled bool) Option {
	return func(b *Bot) { b.delayPrivmsgs = enabled }
}

// PrivmsgDelay tunes the per-target pacing of PRIVMSG and NOTICE
// traffic; see MessageDelay.
func PrivmsgDelay(multiplier, max, window time.Duration) Option {
	return func(b *Bot) {
		b.privmsgDelayMultiplier, b.privmsgMaxDelay, b.privmsgConsecutiveTimeout = multiplier, max, window
	}
}

// QuitOnClose controls whether Close sends QUIT before tearing the
// connection down. Enabled by default.
func QuitOnClose(enabled bool) Option {
	return func(b *Bot) { b.quitOnClose = enabled }
}

// UseHostnameWhenSplitting controls whether the bot's server-reported
// hostname is used when computing how much text fits in a PRIVMSG.
// Enabled by default; disabled, a worst-case hostname length is assumed.
func UseHostnameWhenSplitting(enabled bool) Option {
	return func(b *Bot) { b.useHostnameWhenSplitting = enabled }
}

// Bot is an IRC client. Zero connections are managed automatically: one
// Bot handles one connection at a time, and a new Connect starts a fresh
// session. All methods are safe for concurrent use.
type Bot struct {
	log zerolog.Logger

	defaultTimeout           time.Duration
	useHostnameWhenSplitting bool
	quitOnClose              bool
	charmap                  *charmap.Charmap
	requestCaps              []string

	delayMessages      bool
	delayMultiplier    time.Duration
	maxDelay           time.Duration
	consecutiveTimeout time.Duration

	delayPrivmsgs             bool
	privmsgDelayMultiplier    time.Duration
	privmsgMaxDelay           time.Duration
	privmsgConsecutiveTimeout time.Duration

	dialer    *net.Dialer
	tlsConfig *tls.Config
	now       func() time.Time

	mu    sync.Mutex
	sess  *session
	sched *scheduler

	anyHandlers []Handler
	cmdHandlers map[string][]Handler

	wmu sync.Mutex // serializes socket writes

	persistent     tomb.Tomb // tasks that outlive individual connections
	persistentUsed bool      // guarded by mu; set once GoPersistent runs
}

func New(opts ...Option) *Bot {
	b := &Bot{
		log:                      zerolog.Nop(),
		defaultTimeout:           120 * time.Second,
		useHostnameWhenSplitting: true,
		quitOnClose:              true,

		delayMessages:      true,
		delayMultiplier:    10 * time.Millisecond,
		maxDelay:           100 * time.Millisecond,
		consecutiveTimeout: 500 * time.Millisecond,

		delayPrivmsgs:             true,
		privmsgDelayMultiplier:    100 * time.Millisecond,
		privmsgMaxDelay:           1500 * time.Millisecond,
		privmsgConsecutiveTimeout: 5 * time.Second,

		dialer: &net.Dialer{Timeout: 30 * time.Second},
		now:    time.Now,

		sess:        deadSession(),
		cmdHandlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials addr and starts the session goroutines. It returns once
// the connection is up; registration is a separate step (see Register).
func (b *Bot) Connect(ctx context.Context, addr string) error {
	conn, err := b.dial(ctx, addr)
	if err != nil {
		return err
	}
	if err := b.ConnectWith(conn); err != nil {
		conn.Close()
		return err
	}
	b.log.Info().Str("addr", addr).Msg("connected")
	return nil
}

func (b *Bot) dial(ctx context.Context, addr string) (net.Conn, error) {
	if b.tlsConfig != nil {
		d := &tls.Dialer{NetDialer: b.dialer, Config: b.tlsConfig}
		return d.DialContext(ctx, "tcp", addr)
	}
	return b.dialer.DialContext(ctx, "tcp", addr)
}

// ConnectWith starts a session on an already established connection.
func (b *Bot) ConnectWith(conn net.Conn) error {
	b.mu.Lock()
	select {
	case <-b.sess.closed:
	default:
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	sess := newSession()
	sess.conn = conn
	t := new(tomb.Tomb)
	sess.tomb = t
	sched := newScheduler(b, t.Dying())
	b.sess = sess
	b.sched = sched
	b.mu.Unlock()

	t.Go(func() error {
		err := b.readLoop(sess)
		// A read error after the session was already told to die is
		// just the closed socket, not a failure.
		select {
		case <-t.Dying():
			err = nil
		default:
		}
		t.Kill(err)
		return nil
	})
	t.Go(sched.run)
	// closing sess.closed under b.mu before this goroutine returns is
	// what lets Go safely spawn onto the tomb: an unclosed channel
	// means the tomb cannot be dead yet.
	t.Go(func() error {
		<-t.Dying()
		// Best effort: a session dying from an error still tells the
		// server goodbye. Clean shutdowns have already sent QUIT.
		if t.Err() != nil && b.quitOnClose {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.Write([]byte("QUIT\r\n"))
		}
		conn.Close()
		b.mu.Lock()
		close(sess.closed)
		b.mu.Unlock()
		return nil
	})
	return nil
}

// SendCommand validates and queues one outbound command. The returned
// channel closes once the command has been written to the connection,
// or once the connection ends first; it is what Wait.Sent expects.
func (b *Bot) SendCommand(command string, args ...string) (<-chan struct{}, error) {
	m := NewMessage(command, args...)
	if _, err := formatMessage(m.Command, m.Args); err != nil {
		return nil, err
	}
	return b.queueMessage("", m, nil), nil
}

// sendNow writes one message to the connection, bypassing pacing.
func (b *Bot) sendNow(m Message) {
	line, err := formatMessage(m.Command, m.Args)
	if err != nil {
		b.log.Error().Err(err).Str("command", m.Command).Msg("dropping invalid outbound message")
		return
	}
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess.conn == nil {
		return
	}
	b.log.Debug().Str("line", line).Msg("send")
	raw := append(encodeLine(line, b.charmap), '\r', '\n')
	b.wmu.Lock()
	_, err = sess.conn.Write(raw)
	b.wmu.Unlock()
	if err != nil {
		b.log.Warn().Err(err).Msg("write failed")
		sess.tomb.Kill(err)
	}
}

// Registration describes how Register identifies the bot to the server.
// Username and Realname default to the nickname; Mode defaults to "8"
// (invisible).
type Registration struct {
	Nickname string
	Username string
	Realname string
	Password string
	Mode     string
}

var registrationErrors = []string{
	"ERR_NICKNAMEINUSE", "ERR_ERRONEUSNICKNAME", "ERR_NICKCOLLISION",
	"ERR_UNAVAILRESOURCE", "ERR_NONICKNAMEGIVEN", "ERR_NEEDMOREPARAMS",
	"ERR_ALREADYREGISTRED", "ERR_PASSWDMISMATCH", "ERR_YOUREBANNEDCREEP",
}

// Register performs the registration handshake and blocks until the
// server accepts (RPL_WELCOME) or rejects it. Capabilities configured
// with RequestCaps are negotiated first.
func (b *Bot) Register(ctx context.Context, r Registration) error {
	if r.Nickname == "" {
		return errors.New("registration needs a nickname")
	}
	username := r.Username
	if username == "" {
		username = r.Nickname
	}
	realname := r.Realname
	if realname == "" {
		realname = r.Nickname
	}
	mode := r.Mode
	if mode == "" {
		mode = "8"
	}

	b.mu.Lock()
	b.sess.pendingNickname = r.Nickname
	b.sess.pendingUsername = username
	b.mu.Unlock()

	for _, capName := range b.requestCaps {
		if result, err := b.CapReq(ctx, capName); err != nil {
			return err
		} else if !result.Success && result.Cause != CauseMessage {
			return result.Err("capability negotiation failed")
		}
	}

	// Armed before NICK goes out: rejections answer the NICK line, and
	// can arrive before USER is even written.
	pw := b.startWait(Wait{
		Context:  ctx,
		Expected: []Pattern{ExpectReply("RPL_WELCOME", Rest)},
		Errors:   []Pattern{ExpectReplies(registrationErrors, Rest)},
	}, false)

	if r.Password != "" {
		if _, err := b.SendCommand("PASS", r.Password); err != nil {
			pw.remove()
			return err
		}
	}
	if _, err := b.SendCommand("NICK", r.Nickname); err != nil {
		pw.remove()
		return err
	}
	sent, err := b.SendCommand("USER", username, mode, "*", realname)
	if err != nil {
		pw.remove()
		return err
	}
	if len(b.requestCaps) > 0 {
		if _, err := b.SendCommand("CAP", "END"); err != nil {
			pw.remove()
			return err
		}
	}

	pw.w.Sent = sent
	return pw.run().Err("registration failed")
}

// Quit sends QUIT and waits for the server to drop the connection,
// forcing it closed if the server does not.
func (b *Bot) Quit(ctx context.Context, message string) {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	select {
	case <-sess.closed:
		return
	default:
	}

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}
	var args []string
	if message != "" {
		args = append(args, message)
	}
	if sent, err := b.SendCommand("QUIT", args...); err == nil {
		select {
		case <-sent:
		case <-sess.closed:
			return
		case <-ctxDone:
		}
		timer := time.NewTimer(10 * time.Second)
		defer timer.Stop()
		select {
		case <-sess.closed:
			return
		case <-ctxDone:
		case <-timer.C:
		}
	}
	sess.tomb.Kill(nil)
	_ = sess.tomb.Wait()
}

// Close ends the current connection, sending QUIT first when QuitOnClose
// is enabled, and stops persistent tasks. The bot cannot be reused after
// Close.
func (b *Bot) Close() {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	select {
	case <-sess.closed:
	default:
		if b.quitOnClose {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			b.Quit(ctx, "")
			cancel()
		} else {
			sess.tomb.Kill(nil)
			_ = sess.tomb.Wait()
		}
	}
	b.persistent.Kill(nil)
	b.mu.Lock()
	used := b.persistentUsed
	b.mu.Unlock()
	// A tomb that never tracked a goroutine never becomes dead, so
	// waiting on it would block forever.
	if used {
		_ = b.persistent.Wait()
	}
}

// Done returns a channel that closes when the current connection ends.
// Before the first Connect it is already closed.
func (b *Bot) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.closed
}

// WaitUntilDisconnected blocks until the current connection ends and
// returns the error that ended it, if any.
func (b *Bot) WaitUntilDisconnected() error {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	<-sess.closed
	if sess.tomb == nil {
		return nil
	}
	_ = sess.tomb.Wait()
	return sess.tomb.Err()
}

// WaitForClose blocks until the current connection has fully ended:
// transport closed and every connection-scoped task finished.
func (b *Bot) WaitForClose() {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	<-sess.closed
	if sess.tomb != nil {
		_ = sess.tomb.Wait()
	}
}

// Go runs f as a connection-scoped task: an error from f tears the
// connection down, and the session is not fully over until f returns.
// Called while disconnected, f runs detached.
func (b *Bot) Go(f func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess := b.sess
	select {
	case <-sess.closed:
		go func() {
			if err := f(); err != nil {
				b.log.Error().Err(err).Msg("task failed")
			}
		}()
	default:
		sess.tomb.Go(f)
	}
}

// GoPersistent runs f for the lifetime of the bot, across reconnects.
// It ends when Close is called; f should watch Done or return on its
// own.
func (b *Bot) GoPersistent(f func() error) {
	b.mu.Lock()
	b.persistentUsed = true
	b.mu.Unlock()
	b.persistent.Go(f)
}
