package ircx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// MaxLineSize is the IRC line length limit, CRLF included.
const MaxLineSize = 512

const maxMiddleArgs = 14

var (
	ErrEmptyArgument = errors.New("command and arguments may not be empty")
	ErrBadCommand    = errors.New("command must be alphanumeric")
	ErrIllegalByte   = errors.New("arguments may not contain NUL, CR or LF")
	ErrBadArgument   = errors.New("only the last argument may contain spaces or start with ':'")
)

func dropCRLF(data []byte) []byte {
	if len(data) > 1 && data[len(data)-2] == '\r' && data[len(data)-1] == '\n' {
		return data[:len(data)-2]
	}
	return data
}

// scanLines is a bufio.SplitFunc yielding one IRC line per token, CRLF
// stripped. Lines terminated by a bare LF are tolerated.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line := data[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		return i + 1, line, nil
	}
	if atEOF {
		return len(data), dropCRLF(data), nil
	}
	return 0, nil, nil
}

// ParseMessage parses one IRC line (without CRLF) into a Message per the
// line grammar: [':' prefix SPACE] command [SPACE middle]{0,14}
// [SPACE [':'] trailing]. Runs of spaces separate fields; after fourteen
// middle arguments the remainder is the trailing argument whether or not
// it carries a colon.
func ParseMessage(line string) (Message, error) {
	rest := line
	var m Message
	if strings.HasPrefix(rest, ":") {
		var prefix string
		prefix, rest = pop(rest[1:], " ")
		m.Sender = parsePrefix(prefix)
		rest = strings.TrimLeft(rest, " ")
	}
	m.Command, rest = pop(rest, " ")
	if m.Command == "" {
		return Message{}, fmt.Errorf("parse %q: missing command", line)
	}
	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		if rest[0] == ':' || len(m.Args) == maxMiddleArgs {
			m.Args = append(m.Args, strings.TrimPrefix(rest, ":"))
			break
		}
		var arg string
		arg, rest = pop(rest, " ")
		m.Args = append(m.Args, arg)
	}
	return m, nil
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// formatMessage renders a command and arguments as a wire line (without
// CRLF), validating the outbound constraints. The trailing argument is
// always sent with a leading colon. All failures are synchronous; a
// message that formats successfully here cannot fail later in the
// scheduler.
func formatMessage(command string, args []string) (string, error) {
	if command == "" {
		return "", ErrEmptyArgument
	}
	if !isAlnum(command) {
		return "", fmt.Errorf("format %q: %w", command, ErrBadCommand)
	}
	for i, arg := range args {
		if arg == "" {
			return "", fmt.Errorf("format %s: %w", command, ErrEmptyArgument)
		}
		if strings.ContainsAny(arg, "\x00\r\n") {
			return "", fmt.Errorf("format %s: %w", command, ErrIllegalByte)
		}
		if i < len(args)-1 && (strings.Contains(arg, " ") || arg[0] == ':') {
			return "", fmt.Errorf("format %s: %w", command, ErrBadArgument)
		}
	}
	if strings.ContainsAny(command, "\x00\r\n") {
		return "", fmt.Errorf("format %q: %w", command, ErrIllegalByte)
	}
	var b strings.Builder
	b.Grow(MaxLineSize)
	b.WriteString(command)
	for i, arg := range args {
		b.WriteString(" ")
		if i == len(args)-1 {
			b.WriteString(":")
		}
		b.WriteString(arg)
	}
	return b.String(), nil
}

// encodeLine maps an outbound line to wire bytes, transcoding through the
// configured charmap when one is set. Unmappable runes degrade to the
// charmap's replacement byte.
func encodeLine(line string, cm *charmap.Charmap) []byte {
	if cm == nil {
		return []byte(line)
	}
	out := make([]byte, 0, len(line))
	for _, r := range line {
		b, _ := cm.EncodeRune(r)
		out = append(out, b)
	}
	return out
}

// decodeLine maps wire bytes to a string, transcoding through the
// configured charmap when one is set. Without a charmap the bytes are
// taken as UTF-8; invalid sequences survive as replacement runes when the
// string is later processed, matching the "decode errors tolerated by
// substitution" wire contract.
func decodeLine(raw []byte, cm *charmap.Charmap) string {
	if cm == nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	runes := make([]rune, 0, len(raw))
	for _, b := range raw {
		runes = append(runes, cm.DecodeByte(b))
	}
	return string(runes)
}

func pop(line, separator string) (string, string) {
	before, after, found := strings.Cut(line, separator)
	if !found {
		return before, ""
	}
	return before, after
}
