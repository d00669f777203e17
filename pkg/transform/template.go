package transform

import (
	"strings"

	"github.com/gnana997/tsrewrite/pkg/query"
)

// expand substitutes every @name placeholder in tmpl with the text of the
// capture's first binding in m. The longest declared capture name wins, so
// @fields is not read as @field followed by "s" when both exist. A '@' not
// followed by a declared capture is copied through, and a declared capture
// that m does not bind expands to nothing.
func expand(tmpl string, m *query.Match, captures []query.Capture, source []byte) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		if tmpl[i] != '@' {
			next := strings.IndexByte(tmpl[i:], '@')
			if next < 0 {
				b.WriteString(tmpl[i:])
				break
			}
			b.WriteString(tmpl[i : i+next])
			i += next
			continue
		}

		name := longestCapture(tmpl[i+1:], captures)
		if name == "" {
			b.WriteByte('@')
			i++
			continue
		}

		if node, ok := m.First(name); ok {
			b.WriteString(node.TextIn(source))
		}
		i += 1 + len(name)
	}

	return b.String()
}

func longestCapture(rest string, captures []query.Capture) string {
	best := ""
	for _, c := range captures {
		if len(c.Name) > len(best) && strings.HasPrefix(rest, c.Name) {
			best = c.Name
		}
	}
	return best
}
