// Package importer loads the DGII registry export into the record store.
package importer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding names a text encoding tried by the decoder.
type Encoding string

// Supported encodings.
const (
	Latin1      Encoding = "latin-1"
	Windows1252 Encoding = "windows-1252"
	ISO88591    Encoding = "iso-8859-1"
	UTF8        Encoding = "utf-8"
)

// DefaultEncodings is the order in which registry files are decoded.
// Legacy single-byte encodings come first; UTF-8 is the last resort.
var DefaultEncodings = []Encoding{Latin1, Windows1252, ISO88591, UTF8}

// Delimiter separates cells in the registry export.
const Delimiter = '|'

// maxLineBytes bounds a single line of the export.
const maxLineBytes = 1 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed delimited file. Rows exclude the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Attempt is the outcome of decoding with one encoding.
type Attempt struct {
	Encoding Encoding
	Table    *Table
	Err      error
}

// Decode reads the file at path and decodes it with DefaultEncodings.
func Decode(path string) (*Table, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeBytes(data, DefaultEncodings)
}

// DecodeBytes parses data with each encoding in order and returns the first
// successful attempt. When every attempt fails the error wraps
// ErrDecodeFailure and lists each cause.
func DecodeBytes(data []byte, encodings []Encoding) (*Table, Encoding, error) {
	attempts := make([]Attempt, 0, len(encodings))
	for _, enc := range encodings {
		a := decodeWith(data, enc)
		if a.Err == nil {
			return a.Table, a.Encoding, nil
		}
		attempts = append(attempts, a)
	}

	causes := make([]string, 0, len(attempts))
	for _, a := range attempts {
		causes = append(causes, fmt.Sprintf("%s: %v", a.Encoding, a.Err))
	}
	return nil, "", fmt.Errorf("%w: %s", ErrDecodeFailure, strings.Join(causes, "; "))
}

func decodeWith(data []byte, enc Encoding) Attempt {
	a := Attempt{Encoding: enc}

	var src io.Reader
	switch enc {
	case UTF8:
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			a.Err = errors.New("invalid utf-8 byte sequence")
			return a
		}
		src = bytes.NewReader(data)
	default:
		dec, err := decoderFor(enc)
		if err != nil {
			a.Err = err
			return a
		}
		src = transform.NewReader(bytes.NewReader(data), dec.NewDecoder())
	}

	a.Table, a.Err = parseTable(src)
	return a
}

func decoderFor(enc Encoding) (encoding.Encoding, error) {
	switch enc {
	case Latin1, ISO88591:
		return charmap.ISO8859_1, nil
	case Windows1252:
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

// parseTable splits lines on Delimiter. Quotes carry no meaning in the
// export, so a cell such as "LA ECONOMIA" SRL is kept as written.
func parseTable(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	var t *Table
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		cells := strings.Split(line, string(Delimiter))
		if t == nil {
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			t = &Table{Header: cells}
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse row: %w", err)
	}
	if t == nil {
		return nil, errors.New("file has no header row")
	}
	return t, nil
}
