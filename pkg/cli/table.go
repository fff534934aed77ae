package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const columnGap = 2

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Table prints column-aligned rows. Rows are buffered until Flush so
// column widths can be fitted to the terminal; cells of a column that had
// to shrink are word-wrapped. An empty table prints nothing.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	prefix  string
	width   int
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{
		out:     os.Stdout,
		headers: headers,
		width:   terminalWidth(),
	}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithWriter redirects output. Width fitting is turned off.
func (t *Table) WithWriter(w io.Writer) *Table {
	t.out = w
	t.width = 0
	return t
}

// WithWidth fits the table into n columns; 0 turns fitting off.
func (t *Table) WithWidth(n int) *Table {
	t.width = n
	return t
}

// Row adds a row. Missing trailing cells print empty.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows added.
func (t *Table) Len() int {
	return len(t.rows)
}

// Flush writes the headers, a dash divider and every row.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := visualLen(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeLine(t.headers, widths)
	t.writeLine(dividers, widths)

	for _, row := range t.rows {
		cells := make([][]string, len(widths))
		height := 1
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = wrapCell(cell, widths[i])
			if len(cells[i]) > height {
				height = len(cells[i])
			}
		}
		for n := 0; n < height; n++ {
			line := make([]string, len(widths))
			for i := range widths {
				if n < len(cells[i]) {
					line[i] = cells[i][n]
				}
			}
			t.writeLine(line, widths)
		}
	}
	t.rows = nil
}

func (t *Table) writeLine(cells []string, widths []int) {
	var sb strings.Builder
	sb.WriteString(t.prefix)
	for i, cell := range cells {
		sb.WriteString(cell)
		if i == len(cells)-1 {
			break
		}
		sb.WriteString(strings.Repeat(" ", widths[i]-visualLen(cell)+columnGap))
	}
	fmt.Fprintln(t.out, strings.TrimRight(sb.String(), " "))
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// visualLen is the printed width of s: runes, not counting ANSI escapes.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiRegexp.ReplaceAllString(s, ""))
}

// capWidths shrinks the widest columns until the table fits termWidth.
// No column goes below its header width.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	got := make([]int, len(widths))
	copy(got, widths)

	total := func() int {
		n := prefix + columnGap*(len(got)-1)
		for _, w := range got {
			n += w
		}
		return n
	}

	for total() > termWidth {
		widest := -1
		for i, w := range got {
			if w > visualLen(headers[i]) && (widest < 0 || w > got[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		excess := total() - termWidth
		room := got[widest] - visualLen(headers[widest])
		if excess > room {
			excess = room
		}
		got[widest] -= excess
	}
	return got
}

// wrapCell splits s into lines of at most width runes, breaking at spaces
// and hard-breaking words that are longer than width. A cell that fits is
// returned unchanged; a wrapped one loses its ANSI escapes.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	var lines []string
	line := ""
	for _, word := range strings.Fields(ansiRegexp.ReplaceAllString(s, "")) {
		for utf8.RuneCountInString(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case word == "":
		case line == "":
			line = word
		case utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}
