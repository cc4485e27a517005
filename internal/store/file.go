package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pennybuzz/engine/internal/model"
)

// FileStore keeps each table as a CSV file under a data directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the on-disk path for name.
func (s *FileStore) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) SaveCandidates(_ context.Context, name string, rows []model.Candidate) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) LoadCandidates(_ context.Context, name string) ([]model.Candidate, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes rows with the artifact header.
func WriteCSV(w io.Writer, rows []model.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range rows {
		rec := []string{
			c.Ticker,
			strconv.Itoa(c.Mentions),
			formatFloat(c.AvgSentiment),
			formatFloat(c.Last),
			formatFloat(c.AvgDollarVol),
			formatFloat(c.RankScore),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", c.Ticker, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a candidate table. Columns may appear in any order and
// extra columns are ignored, but every column in Columns must be present.
func ReadCSV(r io.Reader) ([]model.Candidate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	rows := []model.Candidate{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		c, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
		}
		rows = append(rows, c)
	}
	return rows, nil
}

func parseRow(rec []string, idx map[string]int) (model.Candidate, error) {
	field := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var c model.Candidate
	var err error
	c.Ticker = field("ticker")
	if c.Mentions, err = parseCount(field("mentions")); err != nil {
		return c, fmt.Errorf("mentions: %w", err)
	}
	if c.AvgSentiment, err = strconv.ParseFloat(field("avg_sentiment"), 64); err != nil {
		return c, fmt.Errorf("avg_sentiment: %w", err)
	}
	if c.Last, err = strconv.ParseFloat(field("last"), 64); err != nil {
		return c, fmt.Errorf("last: %w", err)
	}
	if c.AvgDollarVol, err = strconv.ParseFloat(field("avg_dollar_vol"), 64); err != nil {
		return c, fmt.Errorf("avg_dollar_vol: %w", err)
	}
	if c.RankScore, err = strconv.ParseFloat(field("rank_score"), 64); err != nil {
		return c, fmt.Errorf("rank_score: %w", err)
	}
	return c, nil
}

// parseCount accepts integer counts written either as "12" or "12.0".
func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
