// Package datarecording stores tables of flat structs in SQLite.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Errors returned by recorders and readers.
var (
	ErrInvalidEntry     = errors.New("entry must be a struct of plain fields")
	ErrInvalidTableName = errors.New("invalid table name")
	ErrTableExists      = errors.New("table already exists")
	ErrUnknownTable     = errors.New("table does not exist")
	ErrFileExists       = errors.New("database file already exists")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of the
	// sample entry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry of the type the table was created with.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of all the tables created.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// New creates a DataRecorder that writes into path.sqlite3. A unique name is
// generated if path is empty. The recorder is flushed when the program exits
// through atexit.
func New(path string) (DataRecorder, error) {
	if path == "" {
		path = "meshsim_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	w := NewWithDB(db).(*sqliteWriter)
	w.filename = filename

	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// NewWithDB creates a DataRecorder that writes into an opened database.
func NewWithDB(db *sql.DB) DataRecorder {
	return &sqliteWriter{
		DB:        db,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}
}

type table struct {
	structType reflect.Type
	columns    []string
	entries    []any
}

type sqliteWriter struct {
	*sql.DB

	lock       sync.Mutex
	filename   string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

func isAllowedType(t reflect.Type) bool {
	switch t.Kind() {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	if entry == nil || !structs.IsStruct(entry) {
		return fmt.Errorf("%w: got %T", ErrInvalidEntry, entry)
	}

	types := reflect.TypeOf(entry)
	for i := range types.NumField() {
		field := types.Field(i)

		if !field.IsExported() || !isAllowedType(field.Type) {
			return fmt.Errorf("%w: field %s of %s",
				ErrInvalidEntry, field.Name, types)
		}
	}

	return nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if !tableNamePattern.MatchString(tableName) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, tableName)
	}

	if _, exists := w.tables[tableName]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, tableName)
	}

	if err := checkStructFields(sampleEntry); err != nil {
		return err
	}

	columns := structs.Names(sampleEntry)
	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + strings.Join(columns, ", \n\t") + "\n" + `);`

	if _, err := w.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		columns:    columns,
	}

	return nil
}

func (w *sqliteWriter) InsertData(tableName string, entry any) error {
	w.lock.Lock()

	t, exists := w.tables[tableName]
	if !exists {
		w.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		w.lock.Unlock()
		return fmt.Errorf("%w: table %s takes %s, got %T",
			ErrInvalidEntry, tableName, t.structType, entry)
	}

	t.entries = append(t.entries, entry)
	w.entryCount++
	full := w.entryCount >= w.batchSize

	w.lock.Unlock()

	if full {
		return w.Flush()
	}

	return nil
}

func (w *sqliteWriter) ListTables() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (w *sqliteWriter) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.entryCount == 0 {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(w.tables)) {
		if err := w.flushTable(tx, name, w.tables[name]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	w.entryCount = 0

	return nil
}

func (w *sqliteWriter) flushTable(tx *sql.Tx, name string, t *table) error {
	if len(t.entries) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	stmt, err := tx.Prepare(
		"INSERT INTO " + name + " VALUES (" + placeholders + ")")
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, entry := range t.entries {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}

	t.entries = nil

	return nil
}

func (w *sqliteWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	return w.DB.Close()
}
