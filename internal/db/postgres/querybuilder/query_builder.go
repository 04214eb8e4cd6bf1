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

// Package querybuilder assembles the catalog and COPY statements used by the
// backup engine. All functions are pure string builders: they never validate
// their input and never fail. Malformed parameters produce syntactically
// valid but meaningless SQL, which is the caller's problem to detect.
package querybuilder

import (
	"fmt"
	"strings"
)

const DefaultSchema = "public"

const (
	// DefaultCopyDelimiter and friends are the escaped literals embedded
	// into COPY ... WITH (...) options, matching the text COPY format that
	// psql restores without any client-side decoding.
	DefaultCopyDelimiter  = `\t`
	DefaultCopyNullString = `\N`
	// Backspace is used for quote and escape because it cannot appear in
	// the encoded stream, effectively disabling CSV quoting.
	DefaultCopyQuoteChar  = `\b`
	DefaultCopyEscapeChar = `\b`
)

// CopyOptions carries the formatting parameters shared by the export and
// import statements of one table section. The same values must be used on
// both sides or the round trip breaks.
type CopyOptions struct {
	Delimiter  string
	NullString string
	QuoteChar  string
	EscapeChar string
}

func (o CopyOptions) withDefaults() CopyOptions {
	if o.Delimiter == "" {
		o.Delimiter = DefaultCopyDelimiter
	}
	if o.NullString == "" {
		o.NullString = DefaultCopyNullString
	}
	if o.QuoteChar == "" {
		o.QuoteChar = DefaultCopyQuoteChar
	}
	if o.EscapeChar == "" {
		o.EscapeChar = DefaultCopyEscapeChar
	}
	return o
}

func orDefaultSchema(schema string) string {
	if schema == "" {
		return DefaultSchema
	}
	return schema
}

// AllTables returns the query enumerating base tables of a schema ordered by
// name.
func AllTables(schema string) string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables "+
			"WHERE table_schema = '%s' AND table_type = 'BASE TABLE' "+
			"ORDER BY table_name",
		orDefaultSchema(schema),
	)
}

// TableStructure returns the query describing a table's columns (name, type,
// nullability, default) in declaration order.
func TableStructure(table, schema string) string {
	return fmt.Sprintf(
		"SELECT column_name, data_type, is_nullable, column_default "+
			"FROM information_schema.columns "+
			"WHERE table_schema = '%s' AND table_name = '%s' "+
			"ORDER BY ordinal_position",
		orDefaultSchema(schema), table,
	)
}

// TableColumns returns the query listing just the column names of a table in
// declaration order.
func TableColumns(table, schema string) string {
	return fmt.Sprintf(
		"SELECT column_name FROM information_schema.columns "+
			"WHERE table_schema = '%s' AND table_name = '%s' "+
			"ORDER BY ordinal_position",
		orDefaultSchema(schema), table,
	)
}

// RowCount wraps an arbitrary SELECT into a cardinality query.
func RowCount(selectQuery string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS t", selectQuery)
}

// ColumnStructure wraps an arbitrary SELECT with a zero-row limit so that
// only the column structure is returned. Used for filter validation and
// column-name discovery.
func ColumnStructure(selectQuery string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS t LIMIT 0", selectQuery)
}

// SelectAll builds the canonical unfiltered SELECT for a table.
func SelectAll(table, schema string) string {
	return fmt.Sprintf("SELECT * FROM %s.%s", orDefaultSchema(schema), table)
}

// CopyTo builds a COPY ... TO STDOUT statement exporting the rows of an
// arbitrary SELECT with the given formatting options.
func CopyTo(selectQuery string, opts CopyOptions) string {
	opts = opts.withDefaults()
	return fmt.Sprintf(
		"COPY (%s) TO STDOUT WITH (FORMAT CSV, DELIMITER E'%s', NULL '%s', QUOTE E'%s', ESCAPE E'%s')",
		selectQuery, opts.Delimiter, opts.NullString, opts.QuoteChar, opts.EscapeChar,
	)
}

// CopyFrom builds the COPY ... FROM stdin statement that restores a bulk
// block produced by the matching CopyTo.
func CopyFrom(table string, columns []string, opts CopyOptions) string {
	opts = opts.withDefaults()
	return fmt.Sprintf(
		"COPY %s (%s) FROM stdin WITH (FORMAT CSV, DELIMITER E'%s', NULL '%s', QUOTE E'%s', ESCAPE E'%s')",
		table, strings.Join(columns, ", "),
		opts.Delimiter, opts.NullString, opts.QuoteChar, opts.EscapeChar,
	)
}

// EscapeIdentifier double-quotes a table or column name.
func EscapeIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// SchemaSetup returns the statement sequence preparing a restore target
// schema: optional cascading drop, creation and search path activation.
func SchemaSetup(schema string, dropExisting bool) []string {
	var statements []string
	if dropExisting {
		statements = append(statements, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE;", schema))
	}
	statements = append(statements,
		fmt.Sprintf("CREATE SCHEMA %s;", schema),
		fmt.Sprintf("SET search_path = %s, public;", schema),
	)
	return statements
}

// PerformanceSettings returns the statements toggling restore-time
// performance knobs: trigger suppression and commit durability.
func PerformanceSettings(disableTriggers, disableFsync bool) []string {
	var statements []string
	if disableTriggers {
		statements = append(statements, "SET session_replication_role = replica;")
	}
	if disableFsync {
		statements = append(statements, "SET synchronous_commit = off;")
	}
	return statements
}
