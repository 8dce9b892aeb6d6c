package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/csvcodec"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/generator"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/process"
)

// writeRows writes a header and n single-field rows.
func writeRows(path string, columns []string, n int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(strings.Join(columns, ",") + "\n")
	for i := int64(0); i < n; i++ {
		fmt.Fprintf(&b, "%q\n", fmt.Sprint(i))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// MockRelationalStore keeps row counts per table in memory.
type MockRelationalStore struct {
	mu     sync.Mutex
	counts map[string]int64

	failOnSetup    bool
	failOnLoad     string
	dropLoadedRows bool
	allowedProbe   string
	// progress receives each loaded file's rows, like loader.WithProgress.
	progress func(int64)

	setupCalled int
	loadCalled  int
	usersCalled int
	probes      []string
}

func NewMockRelationalStore() *MockRelationalStore {
	return &MockRelationalStore{counts: make(map[string]int64)}
}

func (m *MockRelationalStore) add(table string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[table] += n
}

func (m *MockRelationalStore) CountRows(ctx context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[table], nil
}

func (m *MockRelationalStore) SetupSchema(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupCalled++
	if m.failOnSetup {
		return fmt.Errorf("mock setup error")
	}
	m.counts = make(map[string]int64)
	return nil
}

func (m *MockRelationalStore) CreateUsers(ctx context.Context, users config.UsersConfig) error {
	m.usersCalled++
	return nil
}

func (m *MockRelationalStore) Truncate(ctx context.Context, tables ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tables {
		m.counts[t] = 0
	}
	return nil
}

func (m *MockRelationalStore) LoadFile(ctx context.Context, path, table string, layout FileLayout) (int64, error) {
	m.mu.Lock()
	m.loadCalled++
	m.mu.Unlock()

	if m.failOnLoad != "" && strings.Contains(path, m.failOnLoad) {
		return 0, fmt.Errorf("mock load error for %s", filepath.Base(path))
	}
	n, err := csvcodec.CountDataRows(path)
	if err != nil {
		return 0, err
	}
	if !m.dropLoadedRows {
		m.add(table, int64(n))
	}
	if m.progress != nil {
		m.progress(int64(n))
	}
	return int64(n), nil
}

func (m *MockRelationalStore) ExportTableCSV(ctx context.Context, table string, columns []string, path string) (int64, error) {
	n, _ := m.CountRows(ctx, table)
	return n, writeRows(path, columns, n)
}

func (m *MockRelationalStore) BookStats(ctx context.Context) (database.BookStats, error) {
	n, _ := m.CountRows(ctx, database.TableBooks)
	return database.BookStats{Books: n, MinPages: 1, MaxPages: 5000, AvgPages: 2500}, nil
}

func (m *MockRelationalStore) InsertBooks(ctx context.Context, books []generator.Book, batchSize int) (int64, error) {
	m.add(database.TableBooks, int64(len(books)))
	return int64(len(books)), nil
}

func (m *MockRelationalStore) InsertTestRecords(ctx context.Context, records []generator.TestRecord, batchSize int) (int64, error) {
	m.add(database.TableTest, int64(len(records)))
	return int64(len(records)), nil
}

func (m *MockRelationalStore) ProbeInsert(ctx context.Context, user, password, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, user+"@"+table)
	if user == m.allowedProbe {
		return nil
	}
	return &mysql.MySQLError{Number: 1142, Message: "INSERT command denied to user"}
}

// MockDocumentStore keeps document counts per collection in memory.
type MockDocumentStore struct {
	mu     sync.Mutex
	counts map[string]int64

	failOnInsert string
}

func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{counts: make(map[string]int64)}
}

func (m *MockDocumentStore) set(coll string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[coll] = n
}

func (m *MockDocumentStore) CountRows(ctx context.Context, coll string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[coll], nil
}

func (m *MockDocumentStore) InsertInBatches(ctx context.Context, coll string, docs []any, batchSize int) (int64, error) {
	if coll == m.failOnInsert {
		return 0, fmt.Errorf("mock insert error for %s", coll)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[coll] += int64(len(docs))
	return int64(len(docs)), nil
}

func (m *MockDocumentStore) DropCollection(ctx context.Context, coll string) error {
	m.set(coll, 0)
	return nil
}

func (m *MockDocumentStore) CreateCollection(ctx context.Context, coll string) error {
	return nil
}

func (m *MockDocumentStore) ExportCSV(ctx context.Context, coll string, fields []string, path string) (int64, error) {
	n, _ := m.CountRows(ctx, coll)
	return n, writeRows(path, fields, n)
}

func (m *MockDocumentStore) ExportJSON(ctx context.Context, coll, path string) (int64, error) {
	n, _ := m.CountRows(ctx, coll)
	return n, os.WriteFile(path, []byte(strings.Repeat("{}\n", int(n))), 0644)
}

// MockTools imports CSV files into a MockDocumentStore and hands the same
// file back on export.
type MockTools struct {
	mongo    *MockDocumentStore
	imported map[string]string

	failOnDump bool
	failOnExec bool
	dumped     []string
	restored   []string
	scripts    []string
	dropped    []string
}

func NewMockTools(mongo *MockDocumentStore) *MockTools {
	return &MockTools{mongo: mongo, imported: make(map[string]string)}
}

func (m *MockTools) MySQLDump(ctx context.Context, outFile string, tables ...string) (process.Output, error) {
	if m.failOnDump {
		return process.Output{Stderr: "access denied"}, fmt.Errorf("mock mysqldump error")
	}
	m.dumped = append(m.dumped, outFile)
	return process.Output{}, os.WriteFile(outFile, []byte("-- dump\n"), 0644)
}

func (m *MockTools) MySQLRestore(ctx context.Context, dumpFile string) (process.Output, error) {
	m.restored = append(m.restored, dumpFile)
	return process.Output{}, nil
}

func (m *MockTools) MySQLExec(ctx context.Context, database, script string) (process.Output, error) {
	if m.failOnExec {
		return process.Output{Stderr: "access denied"}, fmt.Errorf("mock mysql error")
	}
	m.scripts = append(m.scripts, script)
	return process.Output{}, nil
}

func (m *MockTools) MongoDropCollection(ctx context.Context, coll string) (process.Output, error) {
	m.dropped = append(m.dropped, coll)
	m.mongo.set(coll, 0)
	return process.Output{}, nil
}

func (m *MockTools) MongoImport(ctx context.Context, coll, file string, opts process.ImportOptions) (process.Output, error) {
	n, err := csvcodec.CountDataRows(file)
	if err != nil {
		return process.Output{}, err
	}
	m.mongo.set(coll, int64(n))
	m.imported[coll] = file
	return process.Output{}, nil
}

func (m *MockTools) MongoExport(ctx context.Context, coll, outFile string, opts process.ExportOptions) (process.Output, error) {
	src, err := os.Open(m.imported[coll])
	if err != nil {
		return process.Output{}, err
	}
	defer src.Close()
	dst, err := os.Create(outFile)
	if err != nil {
		return process.Output{}, err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return process.Output{}, err
}

// MockBookStore is a PostgreSQL stand-in counting loaded rows.
type MockBookStore struct {
	rows   int64
	copies int
}

func (m *MockBookStore) CountRows(ctx context.Context, table string) (int64, error) {
	return m.rows, nil
}

func (m *MockBookStore) SetupSchema(ctx context.Context) error {
	m.rows = 0
	return nil
}

func (m *MockBookStore) LoadCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, opts ...loader.Option) (*loader.Result, error) {
	n, err := csvcodec.CountDataRows(path)
	if err != nil {
		return nil, err
	}
	m.rows += int64(n)
	return &loader.Result{Inserted: int64(n)}, nil
}

func (m *MockBookStore) CopyCSV(ctx context.Context, path, table string, columns []string, transform loader.Transform, batchSize int) (int64, error) {
	m.copies++
	res, err := m.LoadCSV(ctx, path, table, columns, transform)
	if err != nil {
		return 0, err
	}
	return res.Inserted, nil
}
