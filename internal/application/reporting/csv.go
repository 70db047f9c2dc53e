package reporting

import (
	"bufio"
	"io"
	"strings"
)

// csvWriter writes comma-separated rows. A field is wrapped in double quotes
// when it contains a space, comma, quote or line break; embedded quotes are
// doubled.
type csvWriter struct {
	w   *bufio.Writer
	err error
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: bufio.NewWriter(w)}
}

func (c *csvWriter) row(fields ...string) {
	if c.err != nil {
		return
	}
	for i, f := range fields {
		if i > 0 {
			c.write(",")
		}
		if needsQuotes(f) {
			c.write(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`)
		} else {
			c.write(f)
		}
	}
	c.write("\n")
}

func (c *csvWriter) write(s string) {
	if c.err != nil {
		return
	}
	_, c.err = c.w.WriteString(s)
}

func (c *csvWriter) flush() error {
	if c.err != nil {
		return c.err
	}
	return c.w.Flush()
}

func needsQuotes(f string) bool {
	return strings.ContainsAny(f, " ,\"\r\n\t")
}
