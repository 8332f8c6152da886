// Package documents renders case documents (requirements spec, requirements
// report and quotation). Content is assembled once into a small block model
// and then written out as DOCX, Markdown or an HTML preview.
package documents

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockBullet
	BlockTable
)

type Block struct {
	Kind  BlockKind
	Level int
	Text  string
	// Header and Rows are set for tables only.
	Header []string
	Rows   [][]string
}

type Doc struct {
	Title  string
	Blocks []Block
}

func newDoc(title string) *Doc { return &Doc{Title: title} }

func (d *Doc) heading(level int, text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockHeading, Level: level, Text: text})
}

func (d *Doc) para(text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockParagraph, Text: text})
}

func (d *Doc) bullet(text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockBullet, Text: text})
}

func (d *Doc) table(header []string, rows [][]string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockTable, Header: header, Rows: rows})
}
