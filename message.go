package ircx

import (
	"fmt"
	"strings"
)

// Prefix identifies the sender of a message: nick[!user][@host]. Server
// names arrive in the Nick field.
type Prefix struct {
	Nick string
	User string
	Host string
}

func parsePrefix(s string) Prefix {
	var p Prefix
	p.Nick = s
	if i := strings.Index(p.Nick, "@"); i != -1 {
		p.Nick, p.Host = p.Nick[:i], p.Nick[i+1:]
	}
	if i := strings.Index(p.Nick, "!"); i != -1 {
		p.Nick, p.User = p.Nick[:i], p.Nick[i+1:]
	}
	return p
}

func (p Prefix) String() string {
	s := p.Nick
	if p.User != "" {
		s += "!" + p.User
	}
	if p.Host != "" {
		s += "@" + p.Host
	}
	return s
}

// Message is one parsed IRC line. Values are immutable by convention:
// nothing in this package mutates a Message after construction.
type Message struct {
	Sender  Prefix
	Command string
	Args    []string
}

func NewMessage(command string, args ...string) Message {
	return Message{Command: command, Args: args}
}

// Arg returns the i-th argument or "" when the message is shorter.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// Trailing returns the last argument or "".
func (m Message) Trailing() string {
	return m.Arg(len(m.Args) - 1)
}

// Equal compares two messages, folding the sender nick and command per
// IRC case rules and comparing arguments exactly.
func (m Message) Equal(o Message) bool {
	if !foldEqual(m.Sender.Nick, o.Sender.Nick) || !foldEqual(m.Command, o.Command) {
		return false
	}
	if len(m.Args) != len(o.Args) {
		return false
	}
	for i := range m.Args {
		if m.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

func (m Message) String() string {
	return fmt.Sprintf("(%q, %q, %q)", m.Sender.String(), m.Command, m.Args)
}

// position i of a message viewed as a tuple: sender nick, command, args.
func (m Message) position(i int) string {
	switch i {
	case 0:
		return m.Sender.Nick
	case 1:
		return m.Command
	default:
		return m.Args[i-2]
	}
}

func (m Message) positions() int {
	return len(m.Args) + 2
}

// PatternArg is one position of a message pattern. The built-in kinds are
// Any, Rest, Self, Word, AnyOf and ArgFunc.
type PatternArg interface {
	matchPos(val string, fold bool, self string) bool
	isRest() bool
}

type anyArg struct{}

func (anyArg) matchPos(string, bool, string) bool { return true }
func (anyArg) isRest() bool                       { return false }

type restArg struct{}

func (restArg) matchPos(string, bool, string) bool { return true }
func (restArg) isRest() bool                       { return true }

type selfArg struct{}

func (selfArg) matchPos(val string, _ bool, self string) bool {
	return foldEqual(val, self)
}
func (selfArg) isRest() bool { return false }

type wordArg string

func (w wordArg) matchPos(val string, fold bool, _ string) bool {
	if fold {
		return foldEqual(string(w), val)
	}
	return string(w) == val
}
func (wordArg) isRest() bool { return false }

type oneOfArg []string

func (o oneOfArg) matchPos(val string, fold bool, _ string) bool {
	for _, s := range o {
		if fold && foldEqual(s, val) {
			return true
		}
		if !fold && s == val {
			return true
		}
	}
	return false
}
func (oneOfArg) isRest() bool { return false }

type funcArg func(string) bool

func (f funcArg) matchPos(val string, _ bool, _ string) bool { return f(val) }
func (funcArg) isRest() bool                                 { return false }

var (
	// Any matches any value at its position, including a missing one.
	Any PatternArg = anyArg{}
	// Rest matches all remaining positions, including none.
	Rest PatternArg = restArg{}
	// Self matches the bot's current nickname, case-insensitively.
	Self PatternArg = selfArg{}
)

// Word matches a literal value. The comparison is case-insensitive in the
// sender and command positions and exact elsewhere.
func Word(s string) PatternArg { return wordArg(s) }

// AnyOf matches any one of the given literals.
func AnyOf(options ...string) PatternArg { return oneOfArg(options) }

// ArgFunc matches when f returns true for the value at its position.
func ArgFunc(f func(string) bool) PatternArg { return funcArg(f) }

// Pattern describes the shape of messages a wait is interested in. A
// pattern either holds one positional PatternArg per message position
// (sender, command, arguments) or a whole-message predicate.
type Pattern struct {
	pred func(Message) bool
	args []PatternArg
}

// Expect builds a positional pattern. The first two positions are the
// sender nick and the command.
func Expect(sender, command PatternArg, args ...PatternArg) Pattern {
	all := make([]PatternArg, 0, len(args)+2)
	all = append(all, sender, command)
	all = append(all, args...)
	return Pattern{args: all}
}

// MsgFunc builds a pattern from a whole-message predicate.
func MsgFunc(f func(Message) bool) Pattern {
	return Pattern{pred: f}
}

// ExpectReply builds a pattern for a numeric reply, given its symbolic
// name (e.g. "RPL_WELCOME") or code (e.g. "001"). The sender and the first
// reply argument (the recipient's nickname) are implicitly Any.
func ExpectReply(name string, args ...PatternArg) Pattern {
	return Expect(Any, Word(replyCode(name)), append([]PatternArg{Any}, args...)...)
}

// ExpectReplies is ExpectReply for a set of alternative reply names.
func ExpectReplies(names []string, args ...PatternArg) Pattern {
	codes := make([]string, len(names))
	for i, n := range names {
		codes[i] = replyCode(n)
	}
	return Expect(Any, AnyOf(codes...), append([]PatternArg{Any}, args...)...)
}

// Matches reports whether m matches the pattern. Positions are compared
// left to right, short-circuiting on the first mismatch; Rest accepts all
// remaining positions. self is the bot's current nickname, consulted by
// Self positions.
func (p Pattern) Matches(m Message, self string) bool {
	if p.pred != nil {
		return p.pred(m)
	}
	if m.positions() > len(p.args) && !p.hasRest() {
		return false
	}
	for i, arg := range p.args {
		if arg.isRest() {
			return true
		}
		if _, ok := arg.(anyArg); ok {
			continue
		}
		if i >= m.positions() {
			return false
		}
		if !arg.matchPos(m.position(i), i <= 1, self) {
			return false
		}
	}
	return true
}

func (p Pattern) hasRest() bool {
	for _, a := range p.args {
		if a.isRest() {
			return true
		}
	}
	return false
}

func matchesAny(m Message, patterns []Pattern, self string) bool {
	for _, p := range patterns {
		if p.Matches(m, self) {
			return true
		}
	}
	return false
}
