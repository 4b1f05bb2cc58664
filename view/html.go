package view

import (
	"html"
	"strings"
)

// HTML serialises the tree. Attributes are sorted so the output is stable;
// handlers are not part of the markup.
func HTML(n Node) string {
	var sb strings.Builder
	writeHTML(&sb, n)
	return sb.String()
}

func writeHTML(sb *strings.Builder, n Node) {
	if n.IsText() {
		sb.WriteString(html.EscapeString(n.Text))
		return
	}
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, k := range n.attrKeys() {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(n.Attrs[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	for _, c := range n.Children {
		writeHTML(sb, c)
	}
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
}
