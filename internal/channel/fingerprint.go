// internal/channel/fingerprint.go
package channel

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// volatileAttrs change during ordinary interaction without the element
// itself changing, so they are excluded from the structural signature.
var volatileAttrs = map[string]struct{}{
	"style":    {},
	"value":    {},
	"checked":  {},
	"selected": {},
}

// volatileAttrPrefixes covers framework-generated attributes (React data
// handles, live ARIA state) that churn across renders of the same element.
var volatileAttrPrefixes = []string{"data-", "aria-"}

// UIFingerprint reduces an HTML fragment to a stable structural signature:
// tag names, stable attributes in sorted order and whitespace-collapsed text,
// hashed with SHA-256. Two fragments fingerprint equal exactly when the
// element's structure is the same. An empty fragment (nothing at the queried
// coordinates) fingerprints to the empty string.
func UIFingerprint(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF for a complete fragment, anything else means malformed
			// input. Either way, hash what was readable.
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			b.WriteByte('<')
			b.WriteString(tok.Data)
			writeStableAttrs(&b, tok.Attr)
			b.WriteByte('>')
		case html.EndTagToken:
			b.WriteString("</")
			b.WriteString(tok.Data)
			b.WriteByte('>')
		case html.TextToken:
			if text := strings.Join(strings.Fields(tok.Data), " "); text != "" {
				b.WriteString(text)
			}
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeStableAttrs(b *strings.Builder, attrs []html.Attribute) {
	kept := make([]html.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if isVolatileAttr(a.Key) {
			continue
		}
		kept = append(kept, a)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Key < kept[j].Key })

	for _, a := range kept {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(a.Val)
		b.WriteByte('"')
	}
}

func isVolatileAttr(key string) bool {
	key = strings.ToLower(key)
	if _, ok := volatileAttrs[key]; ok {
		return true
	}
	for _, prefix := range volatileAttrPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
