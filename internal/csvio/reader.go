// Package csvio holds the CSV reading conventions shared by header sampling
// and row checking: byte order mark removal, invalid UTF-8 replacement,
// lenient quoting and cell cleanup.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrNoHeader is returned when a file has no header record.
var ErrNoHeader = errors.New("empty file: no header row")

// Decode wraps r so that a leading byte order mark is dropped and invalid
// UTF-8 is replaced with U+FFFD. UTF-16 input with a BOM is transcoded.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// NewReader returns a csv.Reader over the decoded content of r.
// Rows may have varying field counts and bare quotes are tolerated.
func NewReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(Decode(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// ReadHeader reads only the first record of r and returns the normalized
// column names. The rest of the input is never consumed.
func ReadHeader(r io.Reader) ([]string, error) {
	rec, err := NewReader(r).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	cols := make([]string, len(rec))
	for i, c := range rec {
		cols[i] = NormalizeHeader(c)
	}
	return cols, nil
}

// NormalizeHeader cleans a header cell and puts it in Unicode NFC form so
// that visually identical names compare equal.
func NormalizeHeader(s string) string {
	return norm.NFC.String(CleanCell(s))
}

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// IsEmptyRow reports whether every cell in row is blank.
func IsEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// HeaderIndex maps column names to their position in a record.
type HeaderIndex map[string]int

// MakeHeaderIndex indexes a header row. When a name repeats, the first
// occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Value returns the cleaned cell for column in row, or "" when the column is
// unknown or the row is short.
func (h HeaderIndex) Value(row []string, column string) string {
	i, ok := h[column]
	if !ok || i >= len(row) {
		return ""
	}
	return CleanCell(row[i])
}

// Has reports whether column is present.
func (h HeaderIndex) Has(column string) bool {
	_, ok := h[column]
	return ok
}
