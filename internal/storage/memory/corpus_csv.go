package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"previsioni/internal/core"
)

// Column names of a dataset.csv corpus file.
const (
	ColDescription      = "description"
	ColCategory         = "category"
	ColCleanDescription = "clean_description"
)

var corpusHeader = []string{ColDescription, ColCategory, ColCleanDescription}

// CSVCorpus is a labeled corpus kept in a single CSV file. Columns are found
// by header name so extra columns are preserved. Example IDs are 1-based row
// numbers and the version is the row count.
type CSVCorpus struct {
	mu   sync.Mutex
	path string
}

func NewCSVCorpus(path string) *CSVCorpus {
	return &CSVCorpus{path: path}
}

// Path returns the backing file.
func (c *CSVCorpus) Path() string { return c.path }

// ListExamples implements ports.CorpusStore
func (c *CSVCorpus) ListExamples(_ context.Context) ([]core.LabeledExample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header, rows, err := c.readLocked()
	if err != nil {
		return nil, err
	}
	cols, err := columns(header)
	if err != nil {
		return nil, err
	}
	out := make([]core.LabeledExample, 0, len(rows))
	for i, row := range rows {
		out = append(out, core.LabeledExample{
			ID:                    int64(i + 1),
			Description:           cell(row, cols.description),
			Category:              strings.TrimSpace(cell(row, cols.category)),
			NormalizedDescription: strings.TrimSpace(cell(row, cols.clean)),
		})
	}
	return out, nil
}

// AppendExample implements ports.CorpusStore. The file is rewritten through a
// temp file and rename so readers never see a partial row.
func (c *CSVCorpus) AppendExample(_ context.Context, ex core.LabeledExample) (core.LabeledExample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header, rows, err := c.readLocked()
	if errors.Is(err, core.ErrCorpusUnavailable) {
		header, rows, err = corpusHeader, nil, nil
	}
	if err != nil {
		return core.LabeledExample{}, err
	}
	cols, err := columns(header)
	if err != nil {
		return core.LabeledExample{}, err
	}

	row := make([]string, len(header))
	row[cols.category] = ex.Category
	row[cols.clean] = ex.NormalizedDescription
	if cols.description >= 0 {
		row[cols.description] = ex.Description
	}
	rows = append(rows, row)

	all := make([][]string, 0, len(rows)+1)
	all = append(all, header)
	all = append(all, rows...)
	if err := atomicWriteCSV(c.path, all); err != nil {
		return core.LabeledExample{}, fmt.Errorf("write corpus: %w", err)
	}

	ex.ID = int64(len(rows))
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex, nil
}

// Version implements ports.CorpusStore
func (c *CSVCorpus) Version(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, rows, err := c.readLocked()
	if errors.Is(err, core.ErrCorpusUnavailable) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (c *CSVCorpus) readLocked() ([]string, [][]string, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s does not exist", core.ErrCorpusUnavailable, c.path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrCorpusUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: %s is empty", core.ErrCorpusUnavailable, c.path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", core.ErrCorpusMalformed, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrCorpusMalformed, err)
	}
	return header, rows, nil
}

type columnIndex struct {
	description, category, clean int
}

func columns(header []string) (columnIndex, error) {
	idx := columnIndex{description: -1, category: -1, clean: -1}
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColDescription:
			idx.description = i
		case ColCategory:
			idx.category = i
		case ColCleanDescription:
			idx.clean = i
		}
	}
	if idx.category < 0 || idx.clean < 0 {
		return idx, fmt.Errorf("%w: missing %q or %q column", core.ErrCorpusMalformed, ColCategory, ColCleanDescription)
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func atomicWriteCSV(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "corpus-*.csv")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
