package tgui

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// ParseModeHTML is the Telegram parse mode matching values of type H.
const ParseModeHTML = "HTML"

// MaxMessageRunes is Telegram's limit for one text message.
const MaxMessageRunes = 4096

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H should be treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Link builds an HTML link. An empty url renders the escaped text only.
func Link(text, url string) H {
	if strings.TrimSpace(url) == "" {
		return Esc(text)
	}
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text)))
}

// JoinH joins safe HTML parts with sep, skipping blank parts.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}

// Lines joins parts with newlines.
func Lines(parts ...H) H { return JoinH("\n", parts...) }

// Truncate caps h at maxRunes. It cuts on a line boundary so no tag is left open;
// messages built from Lines() only carry tags within a single line.
func Truncate(h H, maxRunes int) H {
	s := h.String()
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return h
	}
	rs := []rune(s)
	cut := string(rs[:maxRunes])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		return H(cut[:i])
	}
	// A single oversized line: fall back to its plain-text form.
	plain := html.UnescapeString(stripTags(s))
	prs := []rune(plain)
	if len(prs) > maxRunes-1 {
		prs = prs[:maxRunes-1]
	}
	return Esc(string(prs) + "…")
}

func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
