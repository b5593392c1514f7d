package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"TrustBoard/internal/domain/models"
)

// ErrSnapshotNotFound is returned by Read when a run has no snapshot files.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// snapshotRow is the on-disk form of one raw observation. Fields are kept as
// a repeated name/value group so parquet and JSON share one layout.
type snapshotRow struct {
	Source      string          `parquet:"source" json:"source"`
	Symbol      string          `parquet:"symbol" json:"symbol"`
	FetchedAtNs int64           `parquet:"fetched_at_ns" json:"fetched_at_ns"` // 0 = unknown
	Fields      []snapshotField `parquet:"fields" json:"fields"`
}

type snapshotField struct {
	Name  string `parquet:"name" json:"name"`
	Value string `parquet:"value" json:"value"`
}

func toSnapshotRow(o models.RawObservation) snapshotRow {
	r := snapshotRow{Source: string(o.Source), Symbol: o.Symbol}
	if !o.FetchedAt.IsZero() {
		r.FetchedAtNs = o.FetchedAt.UnixNano()
	}
	names := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	r.Fields = make([]snapshotField, len(names))
	for i, k := range names {
		r.Fields[i] = snapshotField{Name: k, Value: o.Fields[k]}
	}
	return r
}

func (r snapshotRow) toObservation() models.RawObservation {
	o := models.RawObservation{
		Source: models.Source(r.Source),
		Symbol: r.Symbol,
		Fields: make(map[string]string, len(r.Fields)),
	}
	if r.FetchedAtNs != 0 {
		o.FetchedAt = time.Unix(0, r.FetchedAtNs).UTC()
	}
	for _, f := range r.Fields {
		o.Fields[f.Name] = f.Value
	}
	return o
}

// snapshotCodec writes and reads one snapshot file format.
type snapshotCodec interface {
	Extension() string
	Encode(path string, rows []snapshotRow) error
	Decode(path string) ([]snapshotRow, error)
}

type parquetCodec struct{}

func (parquetCodec) Extension() string { return "parquet" }

func (parquetCodec) Encode(path string, rows []snapshotRow) error {
	return parquet.WriteFile(path, rows)
}

func (parquetCodec) Decode(path string) ([]snapshotRow, error) {
	return parquet.ReadFile[snapshotRow](path)
}

type jsonCodec struct{}

func (jsonCodec) Extension() string { return "json" }

func (jsonCodec) Encode(path string, rows []snapshotRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (jsonCodec) Decode(path string) ([]snapshotRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []snapshotRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

var snapshotCodecs = map[string]snapshotCodec{
	"parquet": parquetCodec{},
	"json":    jsonCodec{},
}

// FileSnapshotStore implements SnapshotStore as <dir>/<run_id>/<source>.<ext>.
type FileSnapshotStore struct {
	dir   string
	codec snapshotCodec
}

// NewFileSnapshotStore creates a store writing the given format (parquet or json).
func NewFileSnapshotStore(dir, format string) (*FileSnapshotStore, error) {
	codec, ok := snapshotCodecs[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
	if dir == "" {
		return nil, fmt.Errorf("snapshot dir is required")
	}
	return &FileSnapshotStore{dir: dir, codec: codec}, nil
}

func (s *FileSnapshotStore) runDir(runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID), nil
}

// Write persists one source's observations atomically and returns the file path.
func (s *FileSnapshotStore) Write(ctx context.Context, runID string, src models.Source, obs []models.RawObservation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	rows := make([]snapshotRow, len(obs))
	for i, o := range obs {
		rows[i] = toSnapshotRow(o)
	}

	path := filepath.Join(dir, string(src)+"."+s.codec.Extension())
	tmp := path + ".tmp"
	if err := s.codec.Encode(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit snapshot %s: %w", path, err)
	}
	return path, nil
}

// Read loads every source snapshot of a run, in source-name order. Files of
// either format are accepted so a run can be replayed after a format change.
func (s *FileSnapshotStore) Read(ctx context.Context, runID string) ([]models.RawObservation, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run %s", ErrSnapshotNotFound, runID)
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(e.Name()), ".")
		if _, ok := snapshotCodecs[ext]; ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrSnapshotNotFound, runID)
	}
	sort.Strings(names)

	var out []models.RawObservation
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		codec := snapshotCodecs[strings.TrimPrefix(filepath.Ext(name), ".")]
		rows, err := codec.Decode(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", name, err)
		}
		for _, r := range rows {
			out = append(out, r.toObservation())
		}
	}
	return out, nil
}
