package ircx

import (
	"strings"
	"testing"
)

func testMsg(prefix, command string, args ...string) Message {
	return Message{Sender: parsePrefix(prefix), Command: command, Args: args}
}

func TestPatternMatches(t *testing.T) {
	const self = "MyBot"
	privmsg := testMsg("alice!u@h", "PRIVMSG", "#chan", "hello there")
	cases := []struct {
		name    string
		pattern Pattern
		msg     Message
		want    bool
	}{
		{
			name:    "exact positions",
			pattern: Expect(Word("alice"), Word("PRIVMSG"), Word("#chan"), Word("hello there")),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "sender and command fold",
			pattern: Expect(Word("ALICE"), Word("privmsg"), Word("#chan"), Any),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "later positions compare exactly",
			pattern: Expect(Any, Word("PRIVMSG"), Word("#CHAN"), Any),
			msg:     privmsg,
			want:    false,
		},
		{
			name:    "too many positions without rest",
			pattern: Expect(Any, Word("PRIVMSG"), Any),
			msg:     privmsg,
			want:    false,
		},
		{
			name:    "rest accepts everything after it",
			pattern: Expect(Any, Word("PRIVMSG"), Rest),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "rest matches even with nothing left",
			pattern: Expect(Any, Word("QUIT"), Rest),
			msg:     testMsg("alice!u@h", "QUIT"),
			want:    true,
		},
		{
			name:    "any matches a missing position",
			pattern: Expect(Any, Word("QUIT"), Any, Any),
			msg:     testMsg("alice!u@h", "QUIT"),
			want:    true,
		},
		{
			name:    "word fails on a missing position",
			pattern: Expect(Any, Word("QUIT"), Word("bye")),
			msg:     testMsg("alice!u@h", "QUIT"),
			want:    false,
		},
		{
			name:    "self matches the bot nickname case-insensitively",
			pattern: Expect(Self, Word("JOIN"), Word("#chan")),
			msg:     testMsg("mybot!u@h", "JOIN", "#chan"),
			want:    true,
		},
		{
			name:    "self rejects other senders",
			pattern: Expect(Self, Word("JOIN"), Word("#chan")),
			msg:     testMsg("alice!u@h", "JOIN", "#chan"),
			want:    false,
		},
		{
			name:    "anyof",
			pattern: Expect(Any, AnyOf("PRIVMSG", "NOTICE"), Rest),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "argfunc",
			pattern: Expect(Any, Word("PRIVMSG"), Any, ArgFunc(func(s string) bool { return strings.HasPrefix(s, "hello") })),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "whole-message predicate",
			pattern: MsgFunc(func(m Message) bool { return len(m.Args) == 2 }),
			msg:     privmsg,
			want:    true,
		},
		{
			name:    "reply with implicit recipient",
			pattern: ExpectReply("RPL_WELCOME", Rest),
			msg:     testMsg("irc.example.com", "001", "MyBot", "Welcome"),
			want:    true,
		},
		{
			name:    "reply by symbolic name matches numeric command",
			pattern: ExpectReply("RPL_ENDOFNAMES", Word("#chan"), Rest),
			msg:     testMsg("irc.example.com", "366", "MyBot", "#chan", "End of /NAMES list"),
			want:    true,
		},
		{
			name:    "replies set",
			pattern: ExpectReplies([]string{"ERR_NOSUCHNICK", "ERR_NONICKNAMEGIVEN"}, Rest),
			msg:     testMsg("irc.example.com", "401", "MyBot", "ghost", "No such nick"),
			want:    true,
		},
	}
	for _, c := range cases {
		if got := c.pattern.Matches(c.msg, self); got != c.want {
			t.Fatalf("%s: Matches = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestMessageAccessors(t *testing.T) {
	m := testMsg("alice!u@h", "PRIVMSG", "#chan", "hi")
	if m.Arg(0) != "#chan" || m.Arg(1) != "hi" {
		t.Fatalf("Arg() = %q, %q", m.Arg(0), m.Arg(1))
	}
	if m.Arg(5) != "" {
		t.Fatal("out-of-range Arg should be empty")
	}
	if m.Trailing() != "hi" {
		t.Fatalf("Trailing() = %q", m.Trailing())
	}
	if testMsg("", "QUIT").Trailing() != "" {
		t.Fatal("Trailing() of argless message should be empty")
	}
}

func TestMessageEqual(t *testing.T) {
	a := testMsg("Alice!u@h", "PRIVMSG", "#chan", "hi")
	b := testMsg("alice!u@h", "privmsg", "#chan", "hi")
	if !a.Equal(b) {
		t.Fatal("sender and command should compare case-insensitively")
	}
	c := testMsg("alice!u@h", "PRIVMSG", "#CHAN", "hi")
	if a.Equal(c) {
		t.Fatal("arguments should compare exactly")
	}
}

func TestPrefixString(t *testing.T) {
	p := parsePrefix("nick!user@host")
	if p.Nick != "nick" || p.User != "user" || p.Host != "host" {
		t.Fatalf("parsePrefix = %+v", p)
	}
	if p.String() != "nick!user@host" {
		t.Fatalf("String() = %q", p.String())
	}
	if got := parsePrefix("irc.example.com"); got.Nick != "irc.example.com" || got.User != "" {
		t.Fatalf("server prefix = %+v", got)
	}
}
