// CLAUDE:SUMMARY CSV roster reader with delimiter sniffing, BOM stripping and WHATWG encoding transcoding.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

func init() {
	Register(csvReader{})
}

type csvReader struct{}

func (csvReader) Format() string       { return "csv" }
func (csvReader) Extensions() []string { return []string{"csv", "tsv", "txt"} }

func (csvReader) Read(r io.Reader, opts Options) ([]Record, error) {
	// Transcode non-UTF-8 encodings before anything looks at the bytes.
	if enc := opts.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		r = transform.NewReader(r, e.NewDecoder())
	}

	br := stripUTF8BOM(bufio.NewReader(r))

	comma := ','
	if d := opts.Delimiter; d != "" {
		if d == `\t` {
			d = "\t"
		}
		comma = []rune(d)[0]
	} else {
		line, _ := br.Peek(4096)
		comma = sniffDelimiter(line)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	l, err := opts.Columns.resolve(header)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return l.records(rows), nil
}

// sniffDelimiter picks the most frequent of comma, semicolon, tab and pipe in
// the first line. Ties favor that order.
func sniffDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, count := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(string(sample), string(c)); n > count {
			best, count = c, n
		}
	}
	return best
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func isUTF8(enc string) bool {
	switch strings.ToLower(strings.ReplaceAll(enc, "-", "")) {
	case "utf8", "":
		return true
	}
	return false
}
