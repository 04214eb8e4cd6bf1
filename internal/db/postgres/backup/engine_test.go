// Copyright 2025 pgsubset
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsubset/pgsubset/internal/db/postgres/filters"
	"github.com/pgsubset/pgsubset/internal/domains"
)

// fakeExecutor resolves every query to a table by scanning for the table
// name, which keeps it independent of exact SQL text. Table names in tests
// must not be substrings of each other.
type fakeExecutor struct {
	tables     []string
	columns    map[string][]string
	counts     map[string]int64
	data       map[string]string
	failColumn map[string]error
	failCount  map[string]error
	closed     bool
}

func (f *fakeExecutor) tableFor(sql string) string {
	for _, table := range f.tables {
		if strings.Contains(sql, table) {
			return table
		}
	}
	return ""
}

func (f *fakeExecutor) QueryStrings(_ context.Context, sql string) ([]string, error) {
	if !strings.Contains(sql, "information_schema.tables") {
		return nil, fmt.Errorf("unexpected query: %s", sql)
	}
	return f.tables, nil
}

func (f *fakeExecutor) QueryInt64(_ context.Context, sql string) (int64, error) {
	table := f.tableFor(sql)
	if err, ok := f.failCount[table]; ok {
		return 0, err
	}
	return f.counts[table], nil
}

func (f *fakeExecutor) ColumnNames(_ context.Context, sql string) ([]string, error) {
	table := f.tableFor(sql)
	if err, ok := f.failColumn[table]; ok {
		return nil, err
	}
	return f.columns[table], nil
}

func (f *fakeExecutor) CopyTo(_ context.Context, w io.Writer, sql string) (int64, error) {
	table := f.tableFor(sql)
	if _, err := io.WriteString(w, f.data[table]); err != nil {
		return 0, err
	}
	return f.counts[table], nil
}

func (f *fakeExecutor) Close(_ context.Context) error {
	f.closed = true
	return nil
}

type fakeDumper struct {
	ddl map[string]string
	err error
}

func (d *fakeDumper) DumpTableStructure(_ context.Context, _, table string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.ddl[table], nil
}

func newTestEngine(exec *fakeExecutor, dumper StructureDumper, cfg domains.BackupConfig) *Engine {
	return NewEngine(
		domains.ConnectionConfig{Host: "localhost", Port: 5432, Username: "postgres", DbName: "testdb"},
		cfg,
		WithConnectFunc(func(ctx context.Context) (Executor, error) { return exec, nil }),
		WithStructureDumper(dumper),
	)
}

func defaultFake() *fakeExecutor {
	return &fakeExecutor{
		tables: []string{"orders", "users"},
		columns: map[string][]string{
			"orders": {"id", "user_id", "total"},
			"users":  {"id", "email"},
		},
		counts: map[string]int64{"orders": 2, "users": 3},
		data: map[string]string{
			"orders": "1\t1\t9.99\n2\t1\t5.00\n",
			"users":  "1\ta@example.com\n2\tb@example.com\n3\tc@example.com\n",
		},
	}
}

func TestEngine_Backup_PlainDocument(t *testing.T) {
	exec := defaultFake()
	dumper := &fakeDumper{ddl: map[string]string{
		"orders": "CREATE TABLE orders (id bigint);",
		"users":  "CREATE TABLE users (id bigint);",
	}}
	engine := newTestEngine(exec, dumper, domains.BackupConfig{
		IncludeHeader:   true,
		DisableTriggers: true,
		DisableFsync:    true,
	})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, &BackupParams{
		Metadata: map[string]any{"env": "test"},
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, out, result.FilePath)
	assert.Equal(t, 2, result.TablesCount)
	assert.Equal(t, int64(5), result.TotalRows)
	assert.Equal(t, TableStats{Rows: 3, Bytes: int64(len(exec.data["users"])), Columns: 2}, result.Tables["users"])
	assert.True(t, exec.closed)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "-- PostgreSQL Database Backup")
	assert.Contains(t, doc, "-- Database: testdb")
	assert.Contains(t, doc, "--   env: test")
	assert.Contains(t, doc, "SET session_replication_role = replica;")
	assert.Contains(t, doc, "SET synchronous_commit = off;")
	assert.Contains(t, doc, "-- Table structure for: orders")
	assert.Contains(t, doc, "COPY orders (id, user_id, total) FROM stdin")
	assert.Contains(t, doc, exec.data["orders"]+"\\.\n")
	assert.Contains(t, doc, "SET session_replication_role = DEFAULT;")
	assert.Contains(t, doc, "ANALYZE;")
	// The structure dump precedes the data block of the same table.
	assert.Less(t, strings.Index(doc, "-- Table structure for: users"), strings.Index(doc, "COPY users"))
}

func TestEngine_Backup_CleanedDocument(t *testing.T) {
	exec := defaultFake()
	dumper := &fakeDumper{ddl: map[string]string{
		"orders": "CREATE TABLE public.orders (id bigint);",
		"users":  "CREATE TABLE public.users (id bigint);",
	}}
	engine := newTestEngine(exec, dumper, domains.BackupConfig{
		IncludeHeader: true,
		CleanOutput:   true,
	})

	dir := t.TempDir()
	out := filepath.Join(dir, "backup.sql")
	result := engine.Backup(context.Background(), out, &BackupParams{TargetSchema: "client_a"})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, true, result.Metadata["cleaned"])

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(content)

	assert.True(t, strings.HasPrefix(doc, "-- Cleaned SQL backup"))
	assert.Contains(t, doc, "SET search_path = client_a, public;")
	assert.Contains(t, doc, "CREATE TABLE orders (id bigint);")
	assert.NotContains(t, doc, "public.orders")

	// No temp artifacts left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backup.sql", entries[0].Name())
}

func TestEngine_Backup_ExcludedTables(t *testing.T) {
	exec := defaultFake()
	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{
		ExcludedTables: []string{"users"},
	})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, 1, result.TablesCount)
	assert.Equal(t, int64(2), result.TotalRows)
	assert.NotContains(t, result.Tables, "users")

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "-- Data for table: users")
	assert.NotContains(t, string(content), "COPY users")
}

func TestEngine_Backup_FilteredTable(t *testing.T) {
	exec := defaultFake()
	exec.counts["orders"] = 1
	exec.data["orders"] = "1\t1\t9.99\n"

	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, &BackupParams{
		Filters: map[string]filters.Filter{
			"orders": filters.Raw("SELECT * FROM public.orders WHERE user_id = 1"),
		},
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, int64(1), result.Tables["orders"].Rows)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- Rows: 1")
}

func TestEngine_Backup_PerTableFailureIsolated(t *testing.T) {
	exec := defaultFake()
	exec.failCount = map[string]error{"orders": fmt.Errorf("permission denied for table orders")}

	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, 1, result.TablesCount)
	assert.NotContains(t, result.Tables, "orders")

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(content)
	assert.Contains(t, doc, "-- ERROR backing up table: orders")
	assert.Contains(t, doc, "permission denied")
	assert.Contains(t, doc, "COPY users")
}

func TestEngine_Backup_NoRowsTable(t *testing.T) {
	exec := defaultFake()
	exec.counts["users"] = 0

	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, TableStats{Rows: 0, Bytes: 0, Columns: 2}, result.Tables["users"])

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(content)
	assert.Contains(t, doc, "-- No rows to export (filtered or empty)")
	assert.NotContains(t, doc, "COPY users")
}

func TestEngine_Backup_ConnectFailureNeverPanics(t *testing.T) {
	engine := NewEngine(
		domains.ConnectionConfig{},
		domains.BackupConfig{},
		WithConnectFunc(func(ctx context.Context) (Executor, error) {
			return nil, &ConnectionError{Err: fmt.Errorf("connection refused")}
		}),
		WithStructureDumper(&fakeDumper{}),
	)

	result := engine.Backup(context.Background(), filepath.Join(t.TempDir(), "backup.sql"), nil)
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "connection refused")
	assert.Greater(t, result.Duration.Nanoseconds(), int64(0))
}

func TestEngine_Backup_InvalidTargetSchema(t *testing.T) {
	engine := newTestEngine(defaultFake(), &fakeDumper{}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, &BackupParams{TargetSchema: "bad-name"})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "invalid target schema name")
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_Backup_FilterValidationAbortsBeforeWriting(t *testing.T) {
	exec := defaultFake()
	exec.failColumn = map[string]error{"orders": fmt.Errorf(`column "nope" does not exist`)}

	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, &BackupParams{
		Filters: map[string]filters.Filter{
			"orders": filters.Raw("SELECT * FROM public.orders WHERE nope = 1"),
		},
	})

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "filter validation failed")
	assert.Contains(t, result.ErrorMessage, "orders")
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_ValidateFilters_AggregatesFailures(t *testing.T) {
	exec := defaultFake()
	exec.failColumn = map[string]error{"orders": fmt.Errorf("syntax error")}
	exec.columns["users"] = nil

	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{})

	err := engine.ValidateFilters(context.Background(), map[string]filters.Filter{
		"orders": filters.Raw("SELECT broken"),
		"users":  filters.Raw("SELECT * FROM public.users"),
	})
	require.Error(t, err)

	var validationErr *FilterValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Tables, 2)
	assert.Contains(t, validationErr.Tables["orders"][0], "syntax error")
	assert.Contains(t, validationErr.Tables["users"][0], "no columns")
}

func TestEngine_EstimateSize(t *testing.T) {
	exec := defaultFake()
	engine := newTestEngine(exec, &fakeDumper{}, domains.BackupConfig{
		ExcludedTables: []string{"users"},
	})

	estimates, err := engine.EstimateSize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"orders": 2}, estimates)
}

func TestEngine_Backup_DumperFailureIsNonFatal(t *testing.T) {
	exec := defaultFake()
	engine := newTestEngine(exec, &fakeDumper{err: fmt.Errorf("pg_dump not found")}, domains.BackupConfig{})

	out := filepath.Join(t.TempDir(), "backup.sql")
	result := engine.Backup(context.Background(), out, nil)

	require.True(t, result.Success, result.ErrorMessage)
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(content)
	assert.NotContains(t, doc, "-- Table structure for:")
	assert.Contains(t, doc, "COPY orders")
}
