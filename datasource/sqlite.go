package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/dataset"
	"github.com/YuminosukeSato/propval/pkg/errors"
)

func init() {
	Register("sqlite", func(cfg config.DataSourceConfig) (DataSource, error) {
		return NewSQLiteSource(cfg.DSN, cfg.TrainTable, cfg.TestTable), nil
	})
}

// SQLiteSource reads the train and test tables of one SQLite database file.
type SQLiteSource struct {
	Path       string
	TrainTable string
	TestTable  string
}

// NewSQLiteSource returns a source for the two tables of the database at path.
func NewSQLiteSource(path, trainTable, testTable string) *SQLiteSource {
	return &SQLiteSource{Path: path, TrainTable: trainTable, TestTable: testTable}
}

// Load implements DataSource. Cells are converted to text and go through
// the same kind inference as CSV files.
func (s *SQLiteSource) Load(ctx context.Context) (*dataset.Frame, *dataset.Frame, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, nil, errors.NewNotFoundError("sqlite database", s.Path, err)
	}
	db, err := sql.Open("sqlite", "file:"+s.Path+"?mode=ro")
	if err != nil {
		return nil, nil, errors.NewNotFoundError("sqlite database", s.Path, err)
	}
	defer db.Close()

	train, err := s.readTable(ctx, db, s.TrainTable)
	if err != nil {
		return nil, nil, err
	}
	test, err := s.readTable(ctx, db, s.TestTable)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func (s *SQLiteSource) readTable(ctx context.Context, db *sql.DB, table string) (*dataset.Frame, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("table", s.Path+"#"+table, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "look up table %s", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, errors.Wrapf(err, "query table %s", table)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrapf(err, "columns of %s", table)
	}

	var records [][]string
	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan %s", table)
		}
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = cellText(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", table)
	}
	return dataset.FromRecords(header, records)
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return string(x)
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
