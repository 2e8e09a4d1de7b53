package ircx

import (
	"context"
	"strconv"
	"strings"
	"time"
)

var joinErrors = []string{
	"ERR_BANNEDFROMCHAN", "ERR_INVITEONLYCHAN", "ERR_BADCHANNELKEY",
	"ERR_CHANNELISFULL", "ERR_BADCHANMASK", "ERR_NOSUCHCHANNEL",
	"ERR_TOOMANYCHANNELS", "ERR_TOOMANYTARGETS", "ERR_UNAVAILRESOURCE",
}

// Join joins a channel and blocks until the server's NAMES listing for
// it is complete, so Users reflects the channel membership on return.
func (b *Bot) Join(ctx context.Context, channel string) (*WaitResult, error) {
	result, err := b.sendAndWait(Wait{
		Context: ctx,
		Expected: []Pattern{
			Expect(Self, Word("JOIN"), Word(channel), Rest),
			ExpectReply("RPL_ENDOFNAMES", Word(channel), Rest),
		},
		Errors: []Pattern{ExpectReplies(joinErrors, Word(channel), Rest)},
	}, true, "JOIN", channel)
	if err != nil {
		return nil, err
	}
	return result, result.Err("join " + channel)
}

var partErrors = []string{"ERR_NEEDMOREPARAMS", "ERR_NOSUCHCHANNEL", "ERR_NOTONCHANNEL"}

// Part leaves a channel and blocks until the server confirms.
func (b *Bot) Part(ctx context.Context, channel, message string) (*WaitResult, error) {
	args := []string{channel}
	if message != "" {
		args = append(args, message)
	}
	result, err := b.sendAndWait(Wait{
		Context:  ctx,
		Expected: []Pattern{Expect(Self, Word("PART"), Word(channel), Rest)},
		Errors:   []Pattern{ExpectReplies(partErrors, Word(channel), Rest)},
	}, false, "PART", args...)
	if err != nil {
		return nil, err
	}
	return result, result.Err("part " + channel)
}

var kickErrors = []string{
	"ERR_NEEDMOREPARAMS", "ERR_NOSUCHCHANNEL", "ERR_BADCHANMASK",
	"ERR_CHANOPRIVSNEEDED", "ERR_USERNOTINCHANNEL", "ERR_NOTONCHANNEL",
}

// Kick removes nick from a channel and blocks until the server relays
// the kick.
func (b *Bot) Kick(ctx context.Context, channel, nick, message string) (*WaitResult, error) {
	args := []string{channel, nick}
	if message != "" {
		args = append(args, message)
	}
	nickEq := foldedTo(nick)
	result, err := b.sendAndWait(Wait{
		Context:  ctx,
		Expected: []Pattern{Expect(Any, Word("KICK"), Word(channel), ArgFunc(nickEq), Rest)},
		Errors:   []Pattern{ExpectReplies(kickErrors, Word(channel), Rest)},
	}, false, "KICK", args...)
	if err != nil {
		return nil, err
	}
	return result, result.Err("kick " + nick + " from " + channel)
}

var nickErrors = []string{
	"ERR_NONICKNAMEGIVEN", "ERR_ERRONEUSNICKNAME", "ERR_NICKNAMEINUSE",
	"ERR_NICKCOLLISION", "ERR_UNAVAILRESOURCE", "ERR_RESTRICTED",
}

// Nick changes the bot's nickname and blocks until the server confirms.
// The confirmation arrives under the old nickname, so the expected
// pattern matches on that rather than on Self.
func (b *Bot) Nick(ctx context.Context, newNick string) (*WaitResult, error) {
	b.mu.Lock()
	oldNick := b.sess.nickname
	b.sess.pendingNickname = newNick
	b.mu.Unlock()

	result, err := b.sendAndWait(Wait{
		Context:  ctx,
		Expected: []Pattern{Expect(ArgFunc(foldedTo(oldNick)), Word("NICK"), Word(newNick))},
		Errors:   []Pattern{ExpectReplies(nickErrors, Rest)},
	}, false, "NICK", newNick)
	if err != nil {
		return nil, err
	}
	return result, result.Err("change nickname to " + newNick)
}

// WhoisReply is a parsed WHOIS response.
type WhoisReply struct {
	Nick        string
	Username    string
	Hostname    string
	Realname    string
	Server      string
	ServerInfo  string
	IsIRCOp     bool
	AwayMessage string
	Account     string
	IdleTime    time.Duration
	// Channels holds the target's channels, each possibly preceded by
	// status prefixes such as "@".
	Channels []string
	Raw      []Message
}

var whoisReplies = []string{
	"RPL_AWAY", "RPL_WHOISUSER", "RPL_WHOISSERVER", "RPL_WHOISOPERATOR",
	"RPL_WHOISIDLE", "RPL_WHOISCHANNELS", "RPL_WHOISACCOUNT",
}

// Whois queries a nickname and blocks until the full reply arrives. On
// success the result's Value is a *WhoisReply.
func (b *Bot) Whois(ctx context.Context, nick string) (*WaitResult, error) {
	nickEq := ArgFunc(foldedTo(nick))
	result, err := b.sendAndWait(Wait{
		Context:  ctx,
		Expected: []Pattern{ExpectReply("RPL_ENDOFWHOIS", nickEq, Rest)},
		Errors:   []Pattern{ExpectReplies([]string{"ERR_NOSUCHNICK", "ERR_NONICKNAMEGIVEN"}, nickEq, Rest)},
		Capture:  []Pattern{ExpectReplies(whoisReplies, nickEq, Rest)},
	}, false, "WHOIS", nick)
	if err != nil {
		return nil, err
	}
	if result.Success {
		reply := parseWhois(nick, result.Messages)
		result.Value = reply
		b.mu.Lock()
		b.sess.lastWhois = reply
		b.mu.Unlock()
	}
	return result, result.Err("whois " + nick)
}

func parseWhois(nick string, msgs []Message) *WhoisReply {
	r := &WhoisReply{Nick: nick, Raw: msgs}
	for _, m := range msgs {
		switch m.Command {
		case "301":
			r.AwayMessage = m.Trailing()
		case "311":
			if len(m.Args) >= 6 {
				r.Nick = m.Args[1]
				r.Username = m.Args[2]
				r.Hostname = m.Args[3]
				r.Realname = m.Args[5]
			}
		case "312":
			if len(m.Args) >= 4 {
				r.Server = m.Args[2]
				r.ServerInfo = m.Args[3]
			}
		case "313":
			r.IsIRCOp = true
		case "317":
			if len(m.Args) >= 3 {
				if secs, err := strconv.Atoi(m.Args[2]); err == nil {
					r.IdleTime = time.Duration(secs) * time.Second
				}
			}
		case "319":
			r.Channels = append(r.Channels, strings.Fields(m.Trailing())...)
		case "330":
			if len(m.Args) >= 3 {
				r.Account = m.Args[2]
			}
		}
	}
	return r
}

// Privmsg sends text to a nick or channel, splitting long text into
// multiple messages at word boundaries. The returned channel closes
// once every fragment has been written, or once the connection ends.
func (b *Bot) Privmsg(target, text string) (<-chan struct{}, error) {
	return b.sendTargeted("PRIVMSG", target, text)
}

// Notice is Privmsg with NOTICE.
func (b *Bot) Notice(target, text string) (<-chan struct{}, error) {
	return b.sendTargeted("NOTICE", target, text)
}

func (b *Bot) sendTargeted(command, target, text string) (<-chan struct{}, error) {
	m := NewMessage(command, target, text)
	if _, err := formatMessage(m.Command, m.Args); err != nil {
		return nil, err
	}
	return b.queueMessage(target, m, &splitOptions{nobreak: true}), nil
}

// CapReq requests one IRCv3 capability and blocks until the server's
// ACK or NAK; a NAK surfaces as a message error in the result.
func (b *Bot) CapReq(ctx context.Context, ext string) (*WaitResult, error) {
	extEq := ArgFunc(func(s string) bool {
		return foldEqual(strings.TrimSpace(s), ext)
	})
	return b.sendAndWait(Wait{
		Context:  ctx,
		Expected: []Pattern{Expect(Any, Word("CAP"), Any, Word("ACK"), extEq)},
		Errors: []Pattern{
			Expect(Any, Word("CAP"), Any, Word("NAK"), extEq),
			ExpectReply("ERR_UNKNOWNCOMMAND", Word("CAP"), Rest),
		},
	}, false, "CAP", "REQ", ext)
}

func foldedTo(v string) func(string) bool {
	folded := Fold(v)
	return func(s string) bool { return Fold(s) == folded }
}
