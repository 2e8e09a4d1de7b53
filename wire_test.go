package ircx

import (
	"bufio"
	"errors"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestParseMessage(t *testing.T) {
	cases := []struct {
		line    string
		sender  Prefix
		command string
		args    []string
	}{
		{
			line:    ":nick!user@example.com PRIVMSG #chan :hello world",
			sender:  Prefix{Nick: "nick", User: "user", Host: "example.com"},
			command: "PRIVMSG",
			args:    []string{"#chan", "hello world"},
		},
		{
			line:    "PING :irc.example.com",
			command: "PING",
			args:    []string{"irc.example.com"},
		},
		{
			line:    ":server 001 me :Welcome to the network",
			sender:  Prefix{Nick: "server"},
			command: "001",
			args:    []string{"me", "Welcome to the network"},
		},
		{
			// Runs of spaces separate fields.
			line:    "JOIN   #chan",
			command: "JOIN",
			args:    []string{"#chan"},
		},
		{
			line:    "QUIT",
			command: "QUIT",
		},
		{
			// Trailing may be empty.
			line:    "TOPIC #chan :",
			command: "TOPIC",
			args:    []string{"#chan", ""},
		},
	}
	for _, c := range cases {
		m, err := ParseMessage(c.line)
		if err != nil {
			t.Fatalf("ParseMessage(%q): %v", c.line, err)
		}
		if m.Sender != c.sender {
			t.Fatalf("ParseMessage(%q) sender = %+v, want %+v", c.line, m.Sender, c.sender)
		}
		if m.Command != c.command || !reflect.DeepEqual(m.Args, c.args) {
			t.Fatalf("ParseMessage(%q) = %q %q, want %q %q",
				c.line, m.Command, m.Args, c.command, c.args)
		}
	}
}

func TestParseMessageFifteenthArg(t *testing.T) {
	line := "CMD a1 a2 a3 a4 a5 a6 a7 a8 a9 a10 a11 a12 a13 a14 rest of line"
	m, err := ParseMessage(line)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Args) != 15 {
		t.Fatalf("got %d args, want 15", len(m.Args))
	}
	if m.Trailing() != "rest of line" {
		t.Fatalf("trailing = %q, want %q", m.Trailing(), "rest of line")
	}
}

func TestParseMessageEmpty(t *testing.T) {
	if _, err := ParseMessage(""); err == nil {
		t.Fatal("empty line should not parse")
	}
}

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		command string
		args    []string
		want    string
	}{
		{"PRIVMSG", []string{"#chan", "hello world"}, "PRIVMSG #chan :hello world"},
		{"QUIT", nil, "QUIT"},
		{"NICK", []string{"newnick"}, "NICK :newnick"},
		{"USER", []string{"u", "8", "*", "real name"}, "USER u 8 * :real name"},
	}
	for _, c := range cases {
		got, err := formatMessage(c.command, c.args)
		if err != nil {
			t.Fatalf("formatMessage(%q, %q): %v", c.command, c.args, err)
		}
		if got != c.want {
			t.Fatalf("formatMessage(%q, %q) = %q, want %q", c.command, c.args, got, c.want)
		}
	}
}

func TestFormatMessageRejects(t *testing.T) {
	cases := []struct {
		command string
		args    []string
		want    error
	}{
		{"", nil, ErrEmptyArgument},
		{"PRIV MSG", nil, ErrBadCommand},
		{"001x!", nil, ErrBadCommand},
		{"PRIVMSG", []string{"#chan", ""}, ErrEmptyArgument},
		{"PRIVMSG", []string{"has space", "text"}, ErrBadArgument},
		{"PRIVMSG", []string{":colon", "text"}, ErrBadArgument},
		{"PRIVMSG", []string{"#chan", "evil\r\ninjection"}, ErrIllegalByte},
		{"PRIVMSG", []string{"#chan", "nul\x00byte"}, ErrIllegalByte},
	}
	for _, c := range cases {
		_, err := formatMessage(c.command, c.args)
		if !errors.Is(err, c.want) {
			t.Fatalf("formatMessage(%q, %q) err = %v, want %v", c.command, c.args, err, c.want)
		}
	}
}

func TestScanLines(t *testing.T) {
	input := "first line\r\nsecond\nthird\r\n"
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Split(scanLines)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	want := []string{"first line", "second", "third"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
}

func TestCharmapRoundTrip(t *testing.T) {
	line := "PRIVMSG #chan :привет"
	raw := encodeLine(line, charmap.KOI8R)
	if len(raw) != len("PRIVMSG #chan :")+len("привет")/2 {
		t.Fatalf("koi8-r encoding should be one byte per rune, got %d bytes", len(raw))
	}
	if got := decodeLine(raw, charmap.KOI8R); got != line {
		t.Fatalf("round trip = %q, want %q", got, line)
	}
}

func TestDecodeLineInvalidUTF8(t *testing.T) {
	got := decodeLine([]byte("ok \xff\xfe end"), nil)
	if !strings.Contains(got, "�") {
		t.Fatalf("invalid UTF-8 should be substituted, got %q", got)
	}
	if !strings.HasPrefix(got, "ok ") || !strings.HasSuffix(got, " end") {
		t.Fatalf("valid bytes should survive, got %q", got)
	}
}
