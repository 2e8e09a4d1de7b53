package ircx

import "strings"

// builtinHandlers keeps the session state (channels, user tables,
// prefixes, ISUPPORT, MOTD) in step with the server. They run before
// user handlers and before waiters are resumed.
var builtinHandlers = map[string]func(b *Bot, sess *session, m Message){
	"PING": handlePing,
	"JOIN": handleJoin,
	"PART": handlePart,
	"QUIT": handleQuit,
	"KICK": handleKick,
	"NICK": handleNick,
	"MODE": handleMode,
	"CAP":  handleCap,
	"001":  handleWelcome,
	"005":  handleISupport,
	"353":  handleNamReply,
	"366":  handleEndOfNames,
	"375":  handleMotdStart,
	"372":  handleMotd,
}

// trackSender learns the bot's own user and host from any message the
// server relays with the bot as sender.
func (b *Bot) trackSender(sess *session, m Message) {
	if m.Sender.Nick == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !foldEqual(m.Sender.Nick, sess.nickname) {
		return
	}
	if m.Sender.User != "" {
		sess.username = m.Sender.User
	}
	if m.Sender.Host != "" {
		sess.hostname = m.Sender.Host
	}
}

func handlePing(b *Bot, sess *session, m Message) {
	b.SendCommand("PONG", m.Args...)
}

func handleJoin(b *Bot, sess *session, m Message) {
	if len(m.Args) < 1 || m.Sender.Nick == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.addNickname(m.Sender.Nick, m.Args[0])
}

func handlePart(b *Bot, sess *session, m Message) {
	if len(m.Args) < 1 || m.Sender.Nick == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.removeNickname(m.Sender.Nick, m.Args[0])
}

func handleQuit(b *Bot, sess *session, m Message) {
	if m.Sender.Nick == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	nick := Fold(m.Sender.Nick)
	var channels []string
	for key, users := range sess.users {
		if _, ok := users[nick]; ok {
			channels = append(channels, key)
		}
	}
	sess.removeNickname(m.Sender.Nick, channels...)
}

func handleKick(b *Bot, sess *session, m Message) {
	if len(m.Args) < 2 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.removeNickname(m.Args[1], m.Args[0])
}

func handleNick(b *Bot, sess *session, m Message) {
	if len(m.Args) < 1 || m.Sender.Nick == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.replaceNickname(m.Sender.Nick, m.Args[0])
}

func handleMode(b *Bot, sess *session, m Message) {
	if len(m.Args) < 2 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	users := sess.users[Fold(m.Args[0])]
	if users == nil {
		return
	}
	plus := true
	params := m.Args[2:]
	next := 0
	for i := 0; i < len(m.Args[1]); i++ {
		mode := m.Args[1][i]
		if mode == '+' || mode == '-' {
			plus = mode == '+'
			continue
		}
		prefix, isPrefixMode := sess.prefixFor(mode)
		takesParam := isPrefixMode ||
			strings.IndexByte(sess.chanmodes[0], mode) >= 0 ||
			strings.IndexByte(sess.chanmodes[1], mode) >= 0 ||
			(plus && strings.IndexByte(sess.chanmodes[2], mode) >= 0)
		if isPrefixMode && next < len(params) {
			nick := Fold(params[next])
			if u, ok := users[nick]; ok {
				if plus {
					users[nick] = u.addPrefix(string(prefix))
				} else {
					users[nick] = u.removePrefix(string(prefix))
				}
			}
		}
		if takesParam {
			next++
		}
	}
}

func handleCap(b *Bot, sess *session, m Message) {
	if len(m.Args) < 3 || !strings.EqualFold(m.Args[1], "ACK") {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ext := range strings.Fields(m.Args[2]) {
		if strings.HasPrefix(ext, "-") {
			sess.extensions.Remove(ext[1:])
			continue
		}
		sess.extensions.Add(ext)
	}
}

func handleWelcome(b *Bot, sess *session, m Message) {
	if len(m.Args) < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.registered = true
	sess.nickname = m.Args[0]
	sess.pendingNickname = ""
	sess.username = sess.pendingUsername
}

func handleISupport(b *Bot, sess *session, m Message) {
	if len(m.Args) < 3 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, token := range m.Args[1 : len(m.Args)-1] {
		if strings.HasPrefix(token, "-") {
			delete(sess.isupport, Fold(token[1:]))
			continue
		}
		key, value, _ := strings.Cut(token, "=")
		sess.isupport[Fold(key)] = value
		switch strings.ToUpper(key) {
		case "PREFIX":
			if prefixes, ok := parsePrefixes(value); ok {
				sess.prefixes = prefixes
			}
		case "CHANMODES":
			groups := strings.Split(value, ",")
			for i := 0; i < len(sess.chanmodes); i++ {
				if i < len(groups) {
					sess.chanmodes[i] = groups[i]
				} else {
					sess.chanmodes[i] = ""
				}
			}
		}
	}
}

// parsePrefixes parses an ISUPPORT PREFIX value such as "(ov)@+".
func parsePrefixes(value string) ([]modePrefix, bool) {
	if !strings.HasPrefix(value, "(") {
		return nil, false
	}
	modes, prefixes, ok := strings.Cut(value[1:], ")")
	if !ok || len(modes) != len(prefixes) {
		return nil, false
	}
	out := make([]modePrefix, len(modes))
	for i := 0; i < len(modes); i++ {
		out[i] = modePrefix{mode: modes[i], prefix: prefixes[i]}
	}
	return out, true
}

func handleNamReply(b *Bot, sess *session, m Message) {
	if len(m.Args) < 4 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Fold(m.Args[2])
	sess.rawNames[key] = append(sess.rawNames[key], strings.Fields(m.Args[3])...)
}

// handleEndOfNames turns the accumulated RPL_NAMREPLY names into the
// channel's user table, stripping and recording status prefixes.
func handleEndOfNames(b *Bot, sess *session, m Message) {
	if len(m.Args) < 2 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Fold(m.Args[1])
	names := sess.rawNames[key]
	delete(sess.rawNames, key)

	prefixChars := sess.allPrefixes()
	users := make(map[string]User, len(names))
	for _, name := range names {
		prefixes := ""
		for len(name) > 0 && strings.IndexByte(prefixChars, name[0]) >= 0 {
			prefixes += string(name[0])
			name = name[1:]
		}
		if name == "" {
			continue
		}
		users[Fold(name)] = newUser(name, prefixes)
	}
	sess.users[key] = users
}

func handleMotdStart(b *Bot, sess *session, m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.motd = nil
}

func handleMotd(b *Bot, sess *session, m Message) {
	if len(m.Args) < 2 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sess.motd = append(sess.motd, m.Args[len(m.Args)-1])
}
