package documents

import "strings"

// Markdown renders d as GitHub-flavoured Markdown.
func Markdown(d *Doc) string {
	var sb strings.Builder
	sb.WriteString("# " + d.Title + "\n\n")
	prevBullet := false
	for _, b := range d.Blocks {
		if prevBullet && b.Kind != BlockBullet {
			sb.WriteString("\n")
		}
		prevBullet = b.Kind == BlockBullet
		switch b.Kind {
		case BlockHeading:
			level := b.Level + 1
			if level > 6 {
				level = 6
			}
			sb.WriteString(strings.Repeat("#", level) + " " + b.Text + "\n\n")
		case BlockParagraph:
			sb.WriteString(escapeMarkdown(b.Text) + "\n\n")
		case BlockBullet:
			sb.WriteString("- " + escapeMarkdown(b.Text) + "\n")
		case BlockTable:
			writeMarkdownRow(&sb, b.Header)
			sep := make([]string, len(b.Header))
			for i := range sep {
				sep[i] = "---"
			}
			writeMarkdownRow(&sb, sep)
			for _, r := range b.Rows {
				writeMarkdownRow(&sb, r)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		c = strings.ReplaceAll(c, "\n", " ")
		sb.WriteString(" " + c + " |")
	}
	sb.WriteString("\n")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"<", "&lt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
