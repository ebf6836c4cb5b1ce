// internal/channel/keys.go
package channel

import (
	"strings"
	"unicode/utf8"

	"github.com/chromedp/chromedp/kb"
)

// keySynonyms maps human-friendly key names to the key chords the browser
// understands. Lookup is case-insensitive. Models are inconsistent about key
// naming ("return" vs "enter", "esc" vs "escape"), so the table is generous.
var keySynonyms = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"del":        kb.Delete,
	"space":      " ",
	"spacebar":   " ",
	"up":         kb.ArrowUp,
	"arrowup":    kb.ArrowUp,
	"down":       kb.ArrowDown,
	"arrowdown":  kb.ArrowDown,
	"left":       kb.ArrowLeft,
	"arrowleft":  kb.ArrowLeft,
	"right":      kb.ArrowRight,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pgup":       kb.PageUp,
	"pagedown":   kb.PageDown,
	"pgdn":       kb.PageDown,
}

// ResolveKey translates a named key into its dispatchable chord. A single
// printable rune passes through unchanged. Unknown multi-rune names are
// rejected so typos fail loudly instead of typing garbage into the page.
func ResolveKey(name string) (string, bool) {
	if chord, ok := keySynonyms[strings.ToLower(strings.TrimSpace(name))]; ok {
		return chord, true
	}
	if utf8.RuneCountInString(name) == 1 {
		return name, true
	}
	return "", false
}
