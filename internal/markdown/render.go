package markdown

import (
	"strconv"
	"strings"
)

// DefaultInfo is the info string given to code blocks that have none.
const DefaultInfo = "text"

// Render serializes the tree back to CommonMark.
func Render(t *Tree) string {
	out := renderBlocks(t, t.Children(t.Root()), "\n\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

func renderBlocks(t *Tree, ids []NodeID, sep string) string {
	parts := make([]string, 0, len(ids))
	var inline []NodeID
	flush := func() {
		if len(inline) > 0 {
			if s := renderInline(t, inline); strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
			inline = nil
		}
	}
	for _, id := range ids {
		if !t.Kind(id).Block() {
			// Loose inline content directly under a container.
			inline = append(inline, id)
			continue
		}
		flush()
		if s := renderBlock(t, id); s != "" {
			parts = append(parts, s)
		}
	}
	flush()
	return strings.Join(parts, sep)
}

func renderBlock(t *Tree, id NodeID) string {
	v := t.Value(id)
	switch v.Kind {
	case KindParagraph:
		return renderInline(t, t.Children(id))
	case KindHeading:
		level := min(max(v.Level, 1), 6)
		text := strings.ReplaceAll(renderInline(t, t.Children(id)), "\n", " ")
		return strings.Repeat("#", level) + " " + text
	case KindBlockQuote:
		return prefixLines(renderBlocks(t, t.Children(id), "\n\n"), "> ", ">")
	case KindList:
		return renderList(t, id, v)
	case KindListItem:
		return renderBlocks(t, t.Children(id), "\n\n")
	case KindCodeBlock:
		return renderCodeBlock(v)
	case KindHTMLBlock:
		return strings.TrimRight(v.Literal, "\n")
	case KindHorizontalRule:
		// "---" would be read back as a schema delimiter.
		return "***"
	case KindTable:
		return renderTable(t, id)
	}
	return renderBlocks(t, t.Children(id), "\n\n")
}

func renderList(t *Tree, id NodeID, v Value) string {
	bullet := v.Bullet
	if bullet != '-' && bullet != '*' && bullet != '+' {
		bullet = '-'
	}
	delim := v.Delim
	if delim != '.' && delim != ')' {
		delim = '.'
	}
	start := v.Start
	if start <= 0 {
		start = 1
	}

	itemSep, blockSep := "\n", "\n"
	if !v.Tight {
		itemSep, blockSep = "\n\n", "\n\n"
	}

	items := t.Children(id)
	parts := make([]string, 0, len(items))
	for i, item := range items {
		marker := string(bullet) + " "
		if v.Ordered {
			marker = strconv.Itoa(start+i) + string(delim) + " "
		}
		body := renderBlocks(t, t.Children(item), blockSep)
		indent := strings.Repeat(" ", len(marker))
		lines := strings.Split(body, "\n")
		for j := range lines {
			switch {
			case j == 0:
				lines[j] = marker + lines[j]
			case lines[j] != "":
				lines[j] = indent + lines[j]
			}
		}
		parts = append(parts, strings.TrimRight(strings.Join(lines, "\n"), " "))
	}
	return strings.Join(parts, itemSep)
}

func renderCodeBlock(v Value) string {
	code := strings.TrimSuffix(v.Literal, "\n")
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	info := strings.TrimSpace(v.Info)
	if info == "" {
		info = DefaultInfo
	}
	return fence + info + "\n" + code + "\n" + fence
}

func renderTable(t *Tree, id NodeID) string {
	var rows [][]string
	var aligns []Align
	headerRows := 0
	for _, row := range t.Children(id) {
		var cells []string
		header := false
		for i, cell := range t.Children(row) {
			cv := t.Value(cell)
			header = header || cv.Header
			if i >= len(aligns) {
				aligns = append(aligns, cv.Align)
			}
			text := strings.ReplaceAll(renderInline(t, t.Children(cell)), "\n", " ")
			cells = append(cells, strings.ReplaceAll(text, "|", `\|`))
		}
		if header && headerRows == len(rows) {
			headerRows++
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(aligns) == 0 {
		return ""
	}

	formatRow := func(cells []string) string {
		var b strings.Builder
		b.WriteString("|")
		for i := range aligns {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + " |")
		}
		return b.String()
	}

	// CommonMark tables need exactly one header row.
	head, body := make([]string, len(aligns)), rows
	if headerRows > 0 {
		head, body = rows[0], rows[1:]
	}

	lines := []string{formatRow(head)}
	sep := make([]string, len(aligns))
	for i, a := range aligns {
		switch a {
		case AlignLeft:
			sep[i] = ":--"
		case AlignCenter:
			sep[i] = ":-:"
		case AlignRight:
			sep[i] = "--:"
		default:
			sep[i] = "---"
		}
	}
	lines = append(lines, formatRow(sep))
	for _, r := range body {
		lines = append(lines, formatRow(r))
	}
	return strings.Join(lines, "\n")
}

func renderInline(t *Tree, ids []NodeID) string {
	var b strings.Builder
	for _, id := range ids {
		writeInline(&b, t, id)
	}
	return b.String()
}

func writeInline(b *strings.Builder, t *Tree, id NodeID) {
	v := t.Value(id)
	switch v.Kind {
	case KindText:
		b.WriteString(escapeText(v.Literal))
	case KindSoftbreak:
		b.WriteString("\n")
	case KindHardbreak:
		b.WriteString("\\\n")
	case KindCode:
		writeCodeSpan(b, v.Literal)
	case KindHTMLSpan:
		b.WriteString(v.Literal)
	case KindHTMLBlock:
		// Blocks spliced into inline content must not contain blank lines.
		for i, line := range nonBlankLines(v.Literal) {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
	case KindEmph:
		b.WriteString("*" + renderInline(t, t.Children(id)) + "*")
	case KindStrong:
		b.WriteString("**" + renderInline(t, t.Children(id)) + "**")
	case KindDel:
		b.WriteString("~~" + renderInline(t, t.Children(id)) + "~~")
	case KindLink:
		b.WriteString("[" + renderInline(t, t.Children(id)) + "](" + destination(v.Destination, v.Title) + ")")
	case KindImage:
		alt := strings.ReplaceAll(escapeText(t.PlainText(id)), "\n", " ")
		b.WriteString("![" + alt + "](" + destination(v.Destination, v.Title) + ")")
	default:
		if v.Kind.Block() {
			b.WriteString(renderBlock(t, id))
			return
		}
		b.WriteString(renderInline(t, t.Children(id)))
	}
}

func writeCodeSpan(b *strings.Builder, code string) {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	pad := ""
	if strings.HasPrefix(code, "`") || strings.HasSuffix(code, "`") {
		pad = " "
	}
	b.WriteString(fence + pad + code + pad + fence)
}

func destination(dest, title string) string {
	if strings.ContainsAny(dest, " ()<>") {
		dest = "<" + strings.NewReplacer("<", "%3C", ">", "%3E").Replace(dest) + ">"
	}
	if title == "" {
		return dest
	}
	return dest + ` "` + strings.ReplaceAll(title, `"`, `\"`) + `"`
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

// escapeText escapes characters that would otherwise be read as markup.
func escapeText(s string) string {
	s = textEscaper.Replace(s)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = escapeLineStart(line)
	}
	return strings.Join(lines, "\n")
}

func escapeLineStart(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if trimmed == "" {
		return line
	}
	lead := line[:len(line)-len(trimmed)]
	switch trimmed[0] {
	case '#', '>', '+', '-', '=', '|':
		return lead + `\` + trimmed
	}
	// Ordered list markers such as "1." or "2)".
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i > 0 && i < len(trimmed) && (trimmed[i] == '.' || trimmed[i] == ')') {
		return lead + trimmed[:i] + `\` + trimmed[i:]
	}
	return line
}

func prefixLines(s, prefix, blank string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = blank
		} else {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
