package detect

import (
	"net/url"

	"tagwatch/internal/watch"
	"tagwatch/pkg/tgui"
)

// ReleaseURL is the GitHub deep link for an identifier. GitHub serves this page
// for plain tags as well as for releases.
func ReleaseURL(e watch.Entity, id string) string {
	return "https://github.com/" + url.PathEscape(e.Owner) + "/" + url.PathEscape(e.Name) +
		"/releases/tag/" + url.PathEscape(id)
}

// FormatHTML renders the default Telegram HTML message.
func FormatHTML(ev watch.Event) string {
	title := tgui.JoinH(" ", "🚀", tgui.Esc("New"), tgui.Esc(sourceNoun(ev.Source)), tgui.Esc("in"), tgui.B(ev.Entity.Key())+tgui.Esc(":"), tgui.Code(ev.Identifier))
	var prev tgui.H
	if ev.Previous != "" {
		prev = tgui.JoinH(" ", tgui.I("previous:"), tgui.Code(ev.Previous))
	}
	msg := tgui.Lines(title, prev, tgui.Link(ev.URL, ev.URL))
	return tgui.Truncate(msg, tgui.MaxMessageRunes).String()
}

func sourceNoun(s watch.Source) string {
	if s == watch.SourceRelease {
		return "release"
	}
	return "tag"
}
