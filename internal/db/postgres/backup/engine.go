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

// Package backup produces a restorable plain-SQL document from a filtered
// subset of a database's tables. Table data is streamed through COPY
// directly into the document, structure DDL comes from pg_dump, and the
// finished document is optionally rewritten by the cleaner for restoring
// into a different schema.
package backup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/pgsubset/pgsubset/internal/db/postgres/cleaner"
	"github.com/pgsubset/pgsubset/internal/db/postgres/filters"
	"github.com/pgsubset/pgsubset/internal/db/postgres/pgdump"
	"github.com/pgsubset/pgsubset/internal/db/postgres/querybuilder"
	"github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/utils/ioutils"
)

// StructureDumper obtains the structural DDL of a single table. The
// production implementation shells out to pg_dump; its failure is never
// fatal to a run.
type StructureDumper interface {
	DumpTableStructure(ctx context.Context, schema, table string) (string, error)
}

// BackupParams are the per-run arguments of Backup.
type BackupParams struct {
	// Filters maps table names to row-selection predicates. Tables without
	// an entry are exported unfiltered.
	Filters map[string]filters.Filter
	// TargetSchema, when set, emits schema setup statements and retargets
	// the cleaned output. Overrides the configured target schema.
	TargetSchema string
	// Metadata is included in the document header and the final result.
	Metadata map[string]any
	// SourceSchema overrides the configured schema to back up from.
	SourceSchema string
}

type Engine struct {
	connection domains.ConnectionConfig
	cfg        domains.BackupConfig
	connect    ConnectFunc
	dumper     StructureDumper
	copyOpts   querybuilder.CopyOptions
	pgBinPath  string
}

type Option func(*Engine)

// WithConnectFunc substitutes the database connection factory.
func WithConnectFunc(connect ConnectFunc) Option {
	return func(e *Engine) {
		e.connect = connect
	}
}

// WithStructureDumper substitutes the pg_dump collaborator.
func WithStructureDumper(d StructureDumper) Option {
	return func(e *Engine) {
		e.dumper = d
	}
}

// WithPgBinPath points the default structure dumper at a non-PATH pg_dump
// binary location.
func WithPgBinPath(binPath string) Option {
	return func(e *Engine) {
		e.pgBinPath = binPath
	}
}

func NewEngine(connection domains.ConnectionConfig, cfg domains.BackupConfig, opts ...Option) *Engine {
	if cfg.SourceSchema == "" {
		cfg.SourceSchema = querybuilder.DefaultSchema
	}
	e := &Engine{
		connection: connection,
		cfg:        cfg,
		copyOpts: querybuilder.CopyOptions{
			Delimiter:  cfg.Delimiter,
			NullString: cfg.NullString,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.connect == nil {
		e.connect = PgxConnect(connection)
	}
	if e.dumper == nil {
		e.dumper = pgdump.NewPgDump(e.pgBinPath, pgdump.Options{
			Host:     connection.Host,
			Port:     connection.Port,
			Username: connection.Username,
			Password: connection.Password,
			DbName:   connection.DbName,
		})
	}
	return e
}

// Backup runs the full pipeline and reports the outcome as a Result. It
// never returns an error: any failure is surfaced through the result
// record.
func (e *Engine) Backup(ctx context.Context, outputPath string, params *BackupParams) *Result {
	start := time.Now()
	result := &Result{}

	err := e.runBackup(ctx, outputPath, params, result)
	result.Duration = time.Since(start)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		log.Error().Err(err).Msg("backup failed")
	} else {
		log.Info().Msg(result.String())
	}
	return result
}

func (e *Engine) runBackup(ctx context.Context, outputPath string, params *BackupParams, result *Result) error {
	if params == nil {
		params = &BackupParams{}
	}
	sourceSchema := params.SourceSchema
	if sourceSchema == "" {
		sourceSchema = e.cfg.SourceSchema
	}
	targetSchema := params.TargetSchema
	if targetSchema == "" {
		targetSchema = e.cfg.TargetSchema
	}
	if targetSchema != "" && !cleaner.ValidIdentifier(targetSchema) {
		return &ConfigurationError{Msg: fmt.Sprintf("invalid target schema name: %s", targetSchema)}
	}

	log.Info().Str("Output", outputPath).Str("SourceSchema", sourceSchema).Msg("starting backup")

	// Validation failures must abort before anything is written.
	if len(params.Filters) > 0 {
		if err := e.validateFilters(ctx, params.Filters, sourceSchema); err != nil {
			return err
		}
	}

	conn, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing connection")
		}
	}()

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &CreationError{Msg: "cannot create output directory", Err: err}
	}

	writePath := outputPath
	var tempPath string
	if e.cfg.CleanOutput {
		tempPath = filepath.Join(dir, fmt.Sprintf("backup_tmp_%s.sql", uuid.NewString()))
		writePath = tempPath
		// The temp file must not survive the run, success or failure.
		defer func() {
			if _, statErr := os.Stat(tempPath); statErr == nil {
				if rmErr := os.Remove(tempPath); rmErr != nil {
					log.Warn().Err(rmErr).Str("File", tempPath).Msg("cannot remove temporary file")
				}
			}
		}()
	}

	stats, err := e.writeBackupFile(ctx, conn, writePath, params, sourceSchema, targetSchema)
	if err != nil {
		return err
	}

	if e.cfg.CleanOutput {
		log.Info().Msg("cleaning SQL output")
		if err := e.cleanBackupFile(tempPath, outputPath, targetSchema, sourceSchema); err != nil {
			return err
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return &CreationError{Msg: "output file was not created", Err: err}
	}

	metadata := make(map[string]any, len(params.Metadata)+1)
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	if e.cfg.CleanOutput {
		metadata["cleaned"] = true
	}

	result.Success = true
	result.FilePath = outputPath
	result.SizeBytes = info.Size()
	result.TablesCount = stats.tablesCount
	result.TotalRows = stats.totalRows
	result.Metadata = metadata
	result.Tables = stats.tables
	return nil
}

// ValidateFilters checks every filter by rendering it and executing the
// zero-row structure query, aggregating all failing tables into a single
// error.
func (e *Engine) ValidateFilters(ctx context.Context, flt map[string]filters.Filter) error {
	return e.validateFilters(ctx, flt, e.cfg.SourceSchema)
}

func (e *Engine) validateFilters(ctx context.Context, flt map[string]filters.Filter, sourceSchema string) error {
	if len(flt) == 0 {
		return nil
	}
	conn, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	failed := make(map[string][]string)
	for _, table := range sortedFilterKeys(flt) {
		query := flt[table].Build(table, sourceSchema)
		cols, err := conn.ColumnNames(ctx, querybuilder.ColumnStructure(query))
		switch {
		case err != nil:
			failed[table] = append(failed[table], err.Error())
		case len(cols) == 0:
			failed[table] = append(failed[table], "query returned no columns")
		}
	}
	if len(failed) > 0 {
		return &FilterValidationError{Tables: failed}
	}
	return nil
}

// EstimateSize counts the rows every non-excluded table would contribute
// under the given filters, without writing anything.
func (e *Engine) EstimateSize(ctx context.Context, flt map[string]filters.Filter) (map[string]int64, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	sourceSchema := e.cfg.SourceSchema
	tables, err := conn.QueryStrings(ctx, querybuilder.AllTables(sourceSchema))
	if err != nil {
		return nil, fmt.Errorf("cannot list tables: %w", err)
	}

	estimates := make(map[string]int64)
	for _, table := range tables {
		if slices.Contains(e.cfg.ExcludedTables, table) {
			continue
		}
		query := e.queryForTable(table, flt, sourceSchema)
		count, err := conn.QueryInt64(ctx, querybuilder.RowCount(query))
		if err != nil {
			return nil, fmt.Errorf("cannot count rows for table %s: %w", table, err)
		}
		estimates[table] = count
	}
	return estimates, nil
}

func (e *Engine) writeBackupFile(
	ctx context.Context, conn Executor, path string,
	params *BackupParams, sourceSchema, targetSchema string,
) (*documentStats, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &CreationError{Msg: "cannot create backup file", Err: err}
	}
	var sink io.WriteCloser = f
	if !e.cfg.CleanOutput && e.cfg.Compress {
		sink = ioutils.NewGzipWriter(f, e.cfg.Pgzip)
	}

	w := bufio.NewWriter(sink)
	stats, err := e.writeDocument(ctx, conn, w, params, sourceSchema, targetSchema)
	if err != nil {
		sink.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		sink.Close()
		return nil, &CreationError{Msg: "cannot flush backup file", Err: err}
	}
	if err := sink.Close(); err != nil {
		return nil, &CreationError{Msg: "cannot close backup file", Err: err}
	}
	return stats, nil
}

func (e *Engine) cleanBackupFile(src, dst, targetSchema, sourceSchema string) error {
	c, err := cleaner.New(cleaner.Options{
		SourceSchema: sourceSchema,
		TargetSchema: targetSchema,
	})
	if err != nil {
		return &ConfigurationError{Msg: err.Error()}
	}

	in, err := os.Open(src)
	if err != nil {
		return &CreationError{Msg: "failed to clean backup file", Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &CreationError{Msg: "failed to clean backup file", Err: err}
	}
	var sink io.WriteCloser = out
	if e.cfg.Compress {
		sink = ioutils.NewGzipWriter(out, e.cfg.Pgzip)
	}

	if err := c.CleanLines(in, sink); err != nil {
		sink.Close()
		return &CreationError{Msg: "failed to clean backup file", Err: err}
	}
	if err := sink.Close(); err != nil {
		return &CreationError{Msg: "failed to clean backup file", Err: err}
	}

	log.Info().Str("File", dst).Msg("SQL file cleaned successfully")
	return nil
}

type documentStats struct {
	tablesCount int
	totalRows   int64
	tables      map[string]TableStats
}

func (e *Engine) writeDocument(
	ctx context.Context, conn Executor, w *bufio.Writer,
	params *BackupParams, sourceSchema, targetSchema string,
) (*documentStats, error) {
	stats := &documentStats{tables: make(map[string]TableStats)}

	e.writeHeader(w, params, targetSchema)
	if targetSchema != "" {
		writeSectionBanner(w, "SCHEMA SETUP")
		for _, stmt := range querybuilder.SchemaSetup(targetSchema, true) {
			fmt.Fprintf(w, "%s\n", stmt)
		}
		w.WriteString("\n")
	}

	writeSectionBanner(w, "PERFORMANCE OPTIMIZATIONS")
	for _, stmt := range querybuilder.PerformanceSettings(e.cfg.DisableTriggers, e.cfg.DisableFsync) {
		fmt.Fprintf(w, "%s\n", stmt)
	}
	w.WriteString("\n")

	writeSectionBanner(w, "TABLE STRUCTURES AND DATA")

	tables, err := conn.QueryStrings(ctx, querybuilder.AllTables(sourceSchema))
	if err != nil {
		return nil, &CreationError{Msg: "cannot list tables", Err: err}
	}

	for _, table := range tables {
		if slices.Contains(e.cfg.ExcludedTables, table) {
			log.Info().Str("Table", table).Msg("skipping excluded table")
			continue
		}
		tableStats, err := e.backupTable(ctx, conn, w, table, params, sourceSchema)
		if err != nil {
			// Per-table failures are downgraded to an inline comment so
			// the remaining tables still make it into the document.
			log.Warn().Err(err).Str("Table", table).Msg("failed to backup table")
			fmt.Fprintf(w, "\n-- ERROR backing up table: %s\n-- %s\n\n", table, err.Error())
			continue
		}
		stats.tables[table] = tableStats
		stats.totalRows += tableStats.Rows
		stats.tablesCount++
	}

	e.writeFooter(w)
	return stats, nil
}

func (e *Engine) writeHeader(w io.Writer, params *BackupParams, targetSchema string) {
	if !e.cfg.IncludeHeader {
		return
	}
	fmt.Fprintf(w, "-- PostgreSQL Database Backup\n")
	fmt.Fprintf(w, "-- Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "-- Database: %s\n", e.connection.DbName)
	fmt.Fprintf(w, "-- Using COPY format for fast restore\n")
	if targetSchema != "" {
		fmt.Fprintf(w, "-- Target schema: %s\n", targetSchema)
	}
	if len(params.Filters) > 0 {
		fmt.Fprintf(w, "-- Filtered tables: %d\n", len(params.Filters))
	}
	if len(params.Metadata) > 0 {
		fmt.Fprintf(w, "-- Metadata:\n")
		keys := make([]string, 0, len(params.Metadata))
		for k := range params.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "--   %s: %s\n", k, cast.ToString(params.Metadata[k]))
		}
	}
	fmt.Fprintf(w, "\n")
}

func (e *Engine) writeFooter(w io.Writer) {
	writeSectionBanner(w, "FINALIZATION")
	fmt.Fprintf(w, "-- Re-enable optimizations\n")
	fmt.Fprintf(w, "SET session_replication_role = DEFAULT;\n")
	fmt.Fprintf(w, "SET synchronous_commit = on;\n")
	fmt.Fprintf(w, "ANALYZE;\n\n")
	fmt.Fprintf(w, "-- Backup completed: %s\n", time.Now().Format(time.RFC3339))
}

func (e *Engine) backupTable(
	ctx context.Context, conn Executor, w *bufio.Writer,
	table string, params *BackupParams, sourceSchema string,
) (TableStats, error) {
	e.writeTableStructure(ctx, w, table, sourceSchema)

	query := e.queryForTable(table, params.Filters, sourceSchema)

	cols, err := conn.ColumnNames(ctx, querybuilder.ColumnStructure(query))
	if err != nil {
		return TableStats{}, err
	}
	if len(cols) == 0 {
		return TableStats{}, &CreationError{Msg: fmt.Sprintf("query returned no columns for table %s", table)}
	}

	count, err := conn.QueryInt64(ctx, querybuilder.RowCount(query))
	if err != nil {
		return TableStats{}, err
	}

	var bytesWritten int64
	if count > 0 {
		fmt.Fprintf(w, "\n-- Data for table: %s\n-- Rows: %d\n", table, count)
		fmt.Fprintf(w, "%s;\n", querybuilder.CopyFrom(table, cols, e.copyOpts))

		cw := NewCountingWriter(w)
		if _, err := conn.CopyTo(ctx, cw, querybuilder.CopyTo(query, e.copyOpts)); err != nil {
			return TableStats{}, err
		}
		bytesWritten = cw.Stats().BytesWritten

		w.WriteString("\\.\n\n")
		log.Info().
			Str("Table", table).
			Int64("Rows", count).
			Int64("Bytes", bytesWritten).
			Msg("exported table data")
	} else {
		fmt.Fprintf(w, "\n-- Data for table: %s\n-- No rows to export (filtered or empty)\n\n", table)
		log.Info().Str("Table", table).Msg("no rows to export")
	}

	return TableStats{Rows: count, Bytes: bytesWritten, Columns: len(cols)}, nil
}

// writeTableStructure embeds the pg_dump DDL of a table. Dump failures are
// logged and leave the section without a structure block.
func (e *Engine) writeTableStructure(ctx context.Context, w io.Writer, table, sourceSchema string) {
	if e.dumper == nil {
		return
	}
	ddl, err := e.dumper.DumpTableStructure(ctx, sourceSchema, table)
	if err != nil {
		log.Warn().Err(err).Str("Table", table).Msg("could not dump table structure")
		return
	}
	fmt.Fprintf(w, "\n-- Table structure for: %s\n", table)
	ddl = cleaner.StripPsqlMeta(ddl)
	ddl = cleaner.CollapseBlankLines(ddl)
	io.WriteString(w, ddl)
	io.WriteString(w, "\n")
}

func (e *Engine) queryForTable(table string, flt map[string]filters.Filter, sourceSchema string) string {
	if f, ok := flt[table]; ok && f != nil {
		return f.Build(table, sourceSchema)
	}
	return querybuilder.SelectAll(table, sourceSchema)
}

func writeSectionBanner(w io.Writer, title string) {
	fmt.Fprintf(w, "-- ========================================\n-- %s\n-- ========================================\n\n", title)
}

func sortedFilterKeys(flt map[string]filters.Filter) []string {
	keys := make([]string, 0, len(flt))
	for k := range flt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
