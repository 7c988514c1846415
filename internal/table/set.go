package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Set is an ordered collection of tables keyed by name. Putting a table under
// an existing name replaces it in place.
type Set struct {
	order  []string
	byName map[string]*Table
}

func NewSet() *Set {
	return &Set{byName: map[string]*Table{}}
}

// Put stores t under t.Name.
func (s *Set) Put(t *Table) {
	if _, ok := s.byName[t.Name]; !ok {
		s.order = append(s.order, t.Name)
	}
	s.byName[t.Name] = t
}

func (s *Set) Get(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[name]
	return t, ok
}

// Len is safe on a nil Set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Tables returns the tables in insertion order.
func (s *Set) Tables() []*Table {
	if s == nil {
		return nil
	}
	out := make([]*Table, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.byName[n])
	}
	return out
}

// Names returns table names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// ErrUnsupportedType rejects uploads that are not .csv files.
var ErrUnsupportedType = errors.New("unsupported file type")

// Upload is one file of a batch. Open is called once.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// BytesUpload wraps in-memory content as an Upload.
func BytesUpload(name string, b []byte) Upload {
	return Upload{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}}
}

// IngestError records why one file of a batch was skipped.
type IngestError struct {
	File string
	Err  error
}

func (e *IngestError) Error() string { return fmt.Sprintf("Error reading %s: %v", e.File, e.Err) }

func (e *IngestError) Unwrap() error { return e.Err }

// Ingest parses a batch into a fresh Set. Files that fail are reported and
// skipped; the rest of the batch still loads.
func Ingest(uploads []Upload) (*Set, []*IngestError) {
	set := NewSet()
	var errs []*IngestError
	for _, u := range uploads {
		t, err := ingestOne(u)
		if err != nil {
			errs = append(errs, &IngestError{File: u.Name, Err: err})
			continue
		}
		set.Put(t)
	}
	return set, errs
}

func ingestOne(u Upload) (*Table, error) {
	if !strings.EqualFold(filepath.Ext(u.Name), ".csv") {
		return nil, ErrUnsupportedType
	}
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	return Parse(u.Name, rc)
}
