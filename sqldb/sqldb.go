package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case MySQL, SQLite:
		return d, nil
	case "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported storage type %q", s)
}

type Sqldb struct {
	options
	db *sql.DB
}

type Field struct {
	Title string
	Type  string
}

type TableData struct {
	TableName   string
	ColumnNames []Field
	// Args holds DataCount rows of values, row by row, for Insert.
	Args       []interface{}
	DataCount  int
	PrimaryKey string
	UniqueKeys [][]string
	Indexes    [][]string
}

func New(opts ...Option) (*Sqldb, error) {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	d := &Sqldb{}
	d.options = options

	if err := d.OpenDB(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Sqldb) OpenDB() error {
	if d.sqlURL == "" {
		return errors.New("sql url is empty")
	}
	db, err := sql.Open(string(d.dialect), d.sqlURL)
	if err != nil {
		return err
	}

	switch d.dialect {
	case SQLite:
		// one writer; an in-memory database also lives in a single connection
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(d.maxOpenConns)
		db.SetMaxIdleConns(d.maxOpenConns / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	d.db = db

	return nil
}

func (d *Sqldb) DB() *sql.DB {
	return d.db
}

func (d *Sqldb) Dialect() Dialect {
	return d.dialect
}

func (d *Sqldb) Close() error {
	return d.db.Close()
}

func (d *Sqldb) CreateTable(t TableData) error {
	if len(t.ColumnNames) == 0 {
		return errors.New("column can not be empty")
	}

	var cols []string
	for _, c := range t.ColumnNames {
		cols = append(cols, c.Title+` `+c.Type)
	}
	if t.PrimaryKey != "" {
		cols = append(cols, `PRIMARY KEY (`+t.PrimaryKey+`)`)
	}
	for _, u := range t.UniqueKeys {
		cols = append(cols, `UNIQUE (`+strings.Join(u, ", ")+`)`)
	}
	if d.dialect == MySQL {
		for _, idx := range t.Indexes {
			cols = append(cols, `INDEX `+indexName(t.TableName, idx)+` (`+strings.Join(idx, ", ")+`)`)
		}
	}

	stmts := []string{`CREATE TABLE IF NOT EXISTS ` + t.TableName + ` (` + strings.Join(cols, ", ") + `)`}
	if d.dialect == MySQL {
		stmts[0] += ` ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	} else {
		for _, idx := range t.Indexes {
			stmts = append(stmts, `CREATE INDEX IF NOT EXISTS `+indexName(t.TableName, idx)+
				` ON `+t.TableName+` (`+strings.Join(idx, ", ")+`)`)
		}
	}

	for _, s := range stmts {
		d.logger.Debug("create table", zap.String("sql", s))
		if _, err := d.db.Exec(s); err != nil {
			return fmt.Errorf("create table %s: %w", t.TableName, err)
		}
	}

	return nil
}

// Insert writes t.DataCount rows in one statement.
func (d *Sqldb) Insert(ctx context.Context, t TableData) error {
	if len(t.ColumnNames) == 0 {
		return errors.New("empty column")
	}
	if t.DataCount <= 0 || len(t.Args) != t.DataCount*len(t.ColumnNames) {
		return fmt.Errorf("insert %s: %d args for %d rows of %d columns",
			t.TableName, len(t.Args), t.DataCount, len(t.ColumnNames))
	}

	sql := `INSERT INTO ` + t.TableName + `(` + columnList(t.ColumnNames) + `) VALUES `

	blank := ",(" + strings.Repeat(",?", len(t.ColumnNames))[1:] + ")"
	sql += strings.Repeat(blank, t.DataCount)[1:]
	d.logger.Debug("insert table", zap.String("sql", sql))
	if _, err := d.db.ExecContext(ctx, sql, t.Args...); err != nil {
		return fmt.Errorf("insert %s: %w", t.TableName, err)
	}

	return nil
}

// UpsertClause returns the dialect's suffix for an INSERT that updates
// updateCols when a row with the same conflictCols already exists.
func (d *Sqldb) UpsertClause(conflictCols, updateCols []string) string {
	sets := make([]string, len(updateCols))
	if d.dialect == SQLite {
		for i, c := range updateCols {
			sets[i] = c + ` = excluded.` + c
		}
		return ` ON CONFLICT (` + strings.Join(conflictCols, ", ") + `) DO UPDATE SET ` + strings.Join(sets, ", ")
	}

	for i, c := range updateCols {
		sets[i] = c + ` = VALUES(` + c + `)`
	}
	return ` ON DUPLICATE KEY UPDATE ` + strings.Join(sets, ", ")
}

func columnList(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Title
	}
	return strings.Join(names, ",")
}

func indexName(table string, cols []string) string {
	return "idx_" + table + "_" + strings.Join(cols, "_")
}
