package ircx

import (
	"strings"

	"github.com/rivo/uniseg"
)

// SplitString splits a string into pieces no longer than bytelen bytes of
// UTF-8 each, keeping multi-byte characters and multi-character graphemes
// intact. With nobreak set, pieces break at spaces where possible and one
// separating space is dropped between pieces. bytelen must be positive.
func SplitString(s string, bytelen int, nobreak bool) []string {
	if s == "" {
		return nil
	}
	return splitChunks(s, bytelen, nobreak)
}

// splitStringOnce splits off only the first piece; the remainder is
// returned unsplit and may exceed bytelen.
func splitStringOnce(s string, bytelen int, nobreak bool) []string {
	if s == "" {
		return nil
	}
	first := splitChunks(s, bytelen, nobreak)[0]
	rest := s[len(first):]
	if g := firstGrapheme(rest); g == " " {
		rest = rest[1:]
	}
	var out []string
	if first != "" {
		out = append(out, first)
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func firstGrapheme(s string) string {
	if s == "" {
		return ""
	}
	g, _, _, _ := uniseg.FirstGraphemeClusterInString(s, -1)
	return g
}

func graphemeClusters(s string) []string {
	var out []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

func splitChunks(s string, bytelen int, nobreak bool) []string {
	if bytelen <= 0 {
		panic("ircx: byte length must be positive")
	}
	if len(s) <= bytelen {
		return []string{s}
	}

	gs := graphemeClusters(s)
	var out []string
	var piece []string
	pieceLen := 0
	// Indices into piece used by the nobreak backtracking: the latest
	// space, its end offset in bytes, and the first non-space grapheme.
	spaceIndex, spaceByteIndex, nonspace := -1, -1, -1

	i := 0
	cur := gs[0]
	ok := true
	advance := func() {
		i++
		if i < len(gs) {
			cur = gs[i]
		} else {
			ok = false
		}
	}

	for ok {
		if pieceLen+len(cur) <= bytelen {
			piece = append(piece, cur)
			pieceLen += len(cur)
			if cur == " " {
				spaceIndex = len(piece) - 1
				spaceByteIndex = pieceLen - 1
			} else if nonspace == -1 {
				nonspace = len(piece) - 1
			}
			advance()
			continue
		}

		if len(piece) == 0 {
			// A single grapheme exceeds bytelen; split it between
			// code points and retry with the tail.
			parts := splitByCodePoints([]byte(cur), bytelen)
			for _, p := range parts[:len(parts)-1] {
				out = append(out, string(p))
			}
			cur = string(parts[len(parts)-1])
			nonspace = 0
			continue
		}

		var newPiece []string
		newLen := 0
		switch {
		case !nobreak:
		case cur == " ":
			advance()
		case spaceIndex >= 0:
			newPiece = append(newPiece, piece[spaceIndex+1:]...)
			cut := spaceIndex
			if spaceIndex <= nonspace {
				cut++
			}
			piece = piece[:cut]
			newLen = pieceLen - spaceByteIndex - 1
		}
		out = append(out, strings.Join(piece, ""))
		piece, pieceLen = newPiece, newLen
		spaceIndex, spaceByteIndex, nonspace = -1, -1, -1
	}
	if len(piece) > 0 {
		out = append(out, strings.Join(piece, ""))
	}
	return out
}

// splitByCodePoints splits raw UTF-8 bytes into chunks of at most bytelen
// bytes, cutting only at code point boundaries unless a single code point
// is itself longer than bytelen.
func splitByCodePoints(b []byte, bytelen int) [][]byte {
	var out [][]byte
	for len(b) > bytelen {
		cut := bytelen
		for cut > 0 && b[cut]&0xC0 == 0x80 {
			cut--
		}
		if cut == 0 {
			cut = bytelen
		}
		out = append(out, b[:cut])
		b = b[cut:]
	}
	return append(out, b)
}

// SafeMessageLength returns the maximum number of text bytes a PRIVMSG
// (or NOTICE) to target can carry without the server-relayed form
// possibly exceeding the 512-byte line limit.
func (b *Bot) SafeMessageLength(target string, notice bool) int {
	command := "PRIVMSG"
	if notice {
		command = "NOTICE"
	}
	return b.safeLength(command, target)
}

// safeLength computes the room left for a trailing argument after the
// server prepends the bot's own prefix. Unknown user and host lengths are
// assumed at their common maximums (10 and 63 bytes).
func (b *Bot) safeLength(args ...string) int {
	b.mu.Lock()
	s := b.sess
	nickname := s.nickname
	if len(s.pendingNickname) > len(nickname) {
		nickname = s.pendingNickname
	}
	userLen := 10
	if s.username != "" {
		userLen = len(s.username)
	}
	if len(s.pendingUsername) > userLen {
		userLen = len(s.pendingUsername)
	}
	hostLen := 63
	if s.hostname != "" && b.useHostnameWhenSplitting {
		hostLen = len(s.hostname)
	}
	b.mu.Unlock()

	mask := len(":"+nickname+"!") + userLen + len("@") + hostLen
	// identify-msg prepends one status character to the text.
	overhead := mask + len(" "+strings.Join(args, " ")+" :+\r\n")
	return MaxLineSize - overhead
}

func (b *Bot) splitMessage(m Message, nobreak bool) []Message {
	if len(m.Args) == 0 {
		return []Message{m}
	}
	bytelen := b.safeLength(append([]string{m.Command}, m.Args[:len(m.Args)-1]...)...)
	pieces := SplitString(m.Trailing(), bytelen, nobreak)
	out := make([]Message, 0, len(pieces))
	for _, piece := range pieces {
		args := append(append([]string(nil), m.Args[:len(m.Args)-1]...), piece)
		out = append(out, Message{Sender: m.Sender, Command: m.Command, Args: args})
	}
	return out
}

// splitMessageOnce splits off the first wire-sized fragment; rest is nil
// when the message already fits.
func (b *Bot) splitMessageOnce(m Message, nobreak bool) (first Message, rest *Message) {
	if len(m.Args) == 0 {
		return m, nil
	}
	bytelen := b.safeLength(append([]string{m.Command}, m.Args[:len(m.Args)-1]...)...)
	pieces := splitStringOnce(m.Trailing(), bytelen, nobreak)
	lead := m.Args[:len(m.Args)-1]
	build := func(text string) Message {
		args := append(append([]string(nil), lead...), text)
		return Message{Sender: m.Sender, Command: m.Command, Args: args}
	}
	switch len(pieces) {
	case 0:
		return m, nil
	case 1:
		return build(pieces[0]), nil
	default:
		r := build(pieces[1])
		return build(pieces[0]), &r
	}
}
