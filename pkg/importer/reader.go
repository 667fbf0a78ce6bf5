package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Options tunes how a file is read. Zero values select the defaults.
type Options struct {
	Columns Columns
	// Delimiter forces the CSV field separator; empty sniffs it from the header.
	Delimiter string
	// Encoding is a WHATWG encoding label for non-UTF-8 CSV files.
	Encoding string
	// Sheet selects an XLSX sheet by name; empty reads the first one.
	Sheet string
}

// Reader parses one import file format into Records.
type Reader interface {
	// Format returns the format identifier (e.g. "csv").
	Format() string
	// Extensions returns the lowercase file extensions the format uses.
	Extensions() []string
	// Read parses r. A missing header or name column is an error; blank rows
	// are skipped.
	Read(r io.Reader, opts Options) ([]Record, error)
}

var (
	registryMu sync.RWMutex
	readers    = make(map[string]Reader)
)

// Register adds a reader to the global registry.
func Register(r Reader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	readers[r.Format()] = r
}

// Get returns a registered reader by format, or an error if not found.
func Get(format string) (Reader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := readers[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unknown import format: %q", format)
	}
	return r, nil
}

// ForFilename returns the reader whose extensions include the file's.
func ForFilename(name string) (Reader, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, r := range All() {
		for _, e := range r.Extensions() {
			if e == ext {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("no import format for file %q", name)
}

// All returns all registered readers sorted by format.
func All() []Reader {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Reader, 0, len(readers))
	for _, r := range readers {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Format() < result[j].Format() })
	return result
}
