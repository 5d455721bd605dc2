package datasource

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
)

func init() {
	Register("csv", func(cfg config.DataSourceConfig) (DataSource, error) {
		return NewCSVSource(cfg.TrainPath, cfg.TestPath), nil
	})
}

// CSVSource reads two comma-separated files with a header row.
type CSVSource struct {
	TrainPath string
	TestPath  string
	Comma     rune
}

// NewCSVSource returns a source for the two files.
func NewCSVSource(trainPath, testPath string) *CSVSource {
	return &CSVSource{TrainPath: trainPath, TestPath: testPath, Comma: ','}
}

// Load implements DataSource.
func (s *CSVSource) Load(ctx context.Context) (*dataset.Frame, *dataset.Frame, error) {
	train, err := s.read(ctx, "training data", s.TrainPath)
	if err != nil {
		return nil, nil, err
	}
	test, err := s.read(ctx, "test data", s.TestPath)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func (s *CSVSource) read(ctx context.Context, resource, path string) (*dataset.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewNotFoundError(resource, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = s.Comma
	r.ReuseRecord = false
	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.NewValidationError(resource, "file is empty", path)
	}
	if err != nil {
		return nil, errors.NewValidationError(resource, "cannot parse header: "+err.Error(), path)
	}
	header[0] = trimBOM(header[0])

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError(resource, "cannot parse row: "+err.Error(), path)
		}
		rows = append(rows, rec)
	}

	frame, err := dataset.FromRecords(header, rows)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return frame, nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
