package ircx

import (
	"net"
	"strings"

	"gopkg.in/tomb.v2"
)

// User is one member of a channel together with the mode prefixes (@, +,
// ...) the server has shown for them.
type User struct {
	Nick     string
	prefixes string
}

func newUser(nick, prefixes string) User {
	return User{Nick: nick, prefixes: prefixes}
}

// HasPrefix reports whether the user holds the given prefix character.
func (u User) HasPrefix(prefix string) bool {
	return strings.Contains(u.prefixes, prefix)
}

// Prefixes returns the user's prefix characters in server order.
func (u User) Prefixes() string {
	return u.prefixes
}

func (u User) addPrefix(prefix string) User {
	if u.HasPrefix(prefix) {
		return u
	}
	u.prefixes += prefix
	return u
}

func (u User) removePrefix(prefix string) User {
	u.prefixes = strings.ReplaceAll(u.prefixes, prefix, "")
	return u
}

type modePrefix struct {
	mode   byte
	prefix byte
}

// session is the per-connection state. A fresh session is built for every
// connection attempt and swapped in atomically, so nothing leaks from one
// connection into the next. All fields are guarded by Bot.mu; only the
// dispatch goroutine mutates the protocol state.
type session struct {
	conn net.Conn
	tomb *tomb.Tomb

	// closed when the read pump has terminated; every outstanding wait
	// observes it as CauseDisconnected.
	closed  chan struct{}
	waiters map[*waiter]struct{}

	nickname        string
	oldNickname     string
	pendingNickname string
	pendingUsername string
	username        string
	hostname        string
	registered      bool

	extensions foldedSet
	isupport   map[string]string
	prefixes   []modePrefix
	chanmodes  [4]string
	motd       []string

	channels foldedSet
	users    map[string]map[string]User
	rawNames map[string][]string

	current   Message
	capturing bool
	captured  []Message
	lastWhois *WhoisReply
}

func newSession() *session {
	return &session{
		closed:     make(chan struct{}),
		waiters:    make(map[*waiter]struct{}),
		extensions: newFoldedSet(),
		isupport:   make(map[string]string),
		channels:   newFoldedSet(),
		users:      make(map[string]map[string]User),
		rawNames:   make(map[string][]string),
		// Reasonable defaults until RPL_ISUPPORT says otherwise.
		prefixes:  []modePrefix{{'o', '@'}, {'v', '+'}},
		chanmodes: [4]string{"b", "k", "l", ""},
	}
}

// deadSession returns a session representing "not connected": its closed
// channel is already closed, so waits started against it resolve with
// CauseDisconnected immediately.
func deadSession() *session {
	s := newSession()
	close(s.closed)
	return s
}

func (s *session) prefixFor(mode byte) (byte, bool) {
	for _, p := range s.prefixes {
		if p.mode == mode {
			return p.prefix, true
		}
	}
	return 0, false
}

func (s *session) allPrefixes() string {
	var b strings.Builder
	for _, p := range s.prefixes {
		b.WriteByte(p.prefix)
	}
	return b.String()
}

// addNickname records nick as present in the given channels. When the
// nick is the bot's own, the channel becomes joined and gets a fresh user
// table.
func (s *session) addNickname(nick string, channels ...string) {
	for _, channel := range channels {
		key := Fold(channel)
		if foldEqual(nick, s.nickname) {
			s.channels.Add(channel)
			s.users[key] = make(map[string]User)
		}
		if s.users[key] == nil {
			s.users[key] = make(map[string]User)
		}
		s.users[key][Fold(nick)] = newUser(nick, "")
	}
}

// removeNickname drops nick from the given channels; removing the bot's
// own nick drops the whole channel.
func (s *session) removeNickname(nick string, channels ...string) {
	self := foldEqual(nick, s.nickname)
	for _, channel := range channels {
		key := Fold(channel)
		users, ok := s.users[key]
		if !ok {
			continue
		}
		if _, present := users[Fold(nick)]; !present {
			continue
		}
		if self {
			s.channels.Remove(channel)
			delete(s.users, key)
			continue
		}
		delete(users, Fold(nick))
	}
}

// replaceNickname renames nick across every channel user table; renaming
// the bot's own nick also updates the session nickname.
func (s *session) replaceNickname(nick, newNick string) {
	if foldEqual(nick, s.nickname) {
		s.oldNickname = s.nickname
		s.nickname = newNick
	}
	for _, users := range s.users {
		old := Fold(nick)
		if u, ok := users[old]; ok {
			delete(users, old)
			u.Nick = newNick
			users[Fold(newNick)] = u
		}
	}
}

// Nickname returns the bot's current nickname, or "" before registration.
func (b *Bot) Nickname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.nickname
}

// Username returns the bot's username as learned from the server.
func (b *Bot) Username() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.username
}

// Hostname returns the bot's hostname as learned from the server.
func (b *Bot) Hostname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.hostname
}

// IsRegistered reports whether registration has completed on the current
// connection.
func (b *Bot) IsRegistered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.registered
}

// Channels returns the channels the bot is currently in.
func (b *Bot) Channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.channels.Values()
}

// InChannel reports whether the bot is in the given channel.
func (b *Bot) InChannel(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.channels.Has(channel)
}

// Users returns the known members of a channel. The result is a copy; an
// unknown channel yields an empty map rather than nil lookups failing.
func (b *Bot) Users(channel string) map[string]User {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]User)
	for _, u := range b.sess.users[Fold(channel)] {
		out[Fold(u.Nick)] = u
	}
	return out
}

// Extensions returns the IRCv3 extensions enabled on this connection.
func (b *Bot) Extensions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.extensions.Values()
}

// ISupport returns the value advertised for an RPL_ISUPPORT key.
func (b *Bot) ISupport(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.sess.isupport[Fold(key)]
	return v, ok
}

// Motd returns the message of the day accumulated during registration.
func (b *Bot) Motd() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sess.motd...)
}
