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

// Package cleaner rewrites a plain-SQL backup document so it can be restored
// into a different schema: session settings and psql meta-commands are
// dropped, schema-qualifier prefixes are stripped from DDL/DML statements,
// and an optional search-path header retargets the restore.
//
// The rewrite is a single pass over lines with exactly two states. Outside a
// COPY data block lines are matched against drop rules and keyword-anchored
// substitutions. Once a COPY statement starts a bulk block, every line up to
// the lone backslash-dot terminator is copied through byte for byte: bulk
// payload is opaque text that may legitimately contain anything, including
// substrings that look like qualified identifiers or session settings.
package cleaner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultSourceSchema is the qualifier stripped when none is configured.
	DefaultSourceSchema = "public"

	headerMarker = "-- Cleaned SQL backup"

	identRe = `[a-zA-Z_][a-zA-Z0-9_]*`
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is a plain unquoted SQL identifier.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

var (
	copyStartPattern = regexp.MustCompile(`(?i)^COPY\s+`)
	copyEndPattern   = regexp.MustCompile(`^\\\.\s*$`)

	metaCommandPattern = regexp.MustCompile(`(?m)^\s*\\[a-zA-Z]+\s*.*$`)
	blankRunPattern    = regexp.MustCompile(`\n\n\n+`)
)

// Options configure a Cleaner.
type Options struct {
	// SourceSchema is the qualifier to strip; empty means public.
	SourceSchema string
	// TargetSchema, when set, prepends a header that activates it as the
	// search path. Must be a plain SQL identifier.
	TargetSchema string
	// KeepSchemaPrefix disables qualifier stripping; drop rules still apply.
	KeepSchemaPrefix bool
}

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// Cleaner is safe for concurrent use once constructed: the only mutable
// state is the per-call bulk-block flag local to CleanLines.
type Cleaner struct {
	opts Options
	skip []*regexp.Regexp
	subs []substitution
	// copyLineSub rewrites the COPY statement itself when entering a bulk
	// block, before the opaque-copy state takes over.
	copyLineSub substitution

	now func() time.Time
}

// New validates the target schema name and compiles the rewrite tables for
// the configured source schema.
func New(opts Options) (*Cleaner, error) {
	if opts.TargetSchema != "" && !identifierPattern.MatchString(opts.TargetSchema) {
		return nil, fmt.Errorf("invalid target schema name: %s", opts.TargetSchema)
	}
	if opts.SourceSchema == "" {
		opts.SourceSchema = DefaultSourceSchema
	}
	s := regexp.QuoteMeta(opts.SourceSchema)

	skip := []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*--.*$`),
		regexp.MustCompile(`(?i)^\s*$`),
		regexp.MustCompile(`(?i)^SET\s+search_path`),
		regexp.MustCompile(`(?i)^SELECT\s+pg_catalog\.set_config`),
		// All psql meta-commands, but never the \. bulk terminator.
		regexp.MustCompile(`(?i)^\s*\\[a-zA-Z]+.*$`),
		regexp.MustCompile(`(?i)^SET\s+default_table_access_method`),
		regexp.MustCompile(`(?i)^SET\s+default_tablespace`),
		regexp.MustCompile(`(?i)^SET\s+default_with_oids`),
		regexp.MustCompile(`(?i)^SET\s+row_security`),
		regexp.MustCompile(`(?i)^SET\s+check_function_bodies`),
		regexp.MustCompile(`(?i)^SET\s+xmloption`),
		regexp.MustCompile(`(?i)^SET\s+client_min_messages`),
		regexp.MustCompile(`(?i)^SET\s+standard_conforming_strings`),
		regexp.MustCompile(`(?i)^SET\s+transaction_timeout`),
		regexp.MustCompile(`(?i)^SET\s+idle_in_transaction_session_timeout`),
		regexp.MustCompile(`(?i)^SET\s+client_encoding`),
		regexp.MustCompile(fmt.Sprintf(`(?i)^\s*CREATE\s+SCHEMA\s+%s\s*;`, s)),
		regexp.MustCompile(fmt.Sprintf(`(?i)^\s*COMMENT\s+ON\s+SCHEMA\s+%s`, s)),
	}

	// Keyword-anchored substitutions run in order; the unanchored catch-all
	// must stay last so that statements needing keyword context, such as
	// ALTER TABLE ONLY, are handled before naive stripping can touch them.
	subs := []substitution{
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bCREATE\s+TABLE\s+%s\.(%s)`, s, identRe)), `CREATE TABLE $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bINSERT\s+INTO\s+%s\.(%s)`, s, identRe)), `INSERT INTO $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bALTER\s+TABLE\s+(?:ONLY\s+)?%s\.(%s)`, s, identRe)), `ALTER TABLE $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bCREATE\s+(UNIQUE\s+)?INDEX\s+(%s)\s+ON\s+%s\.(%s)`, identRe, s, identRe)), `CREATE ${1}INDEX $2 ON $3`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bCREATE\s+SEQUENCE\s+%s\.(%s)`, s, identRe)), `CREATE SEQUENCE $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bALTER\s+SEQUENCE\s+%s\.(%s)`, s, identRe)), `ALTER SEQUENCE $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bCOPY\s+%s\.(%s)`, s, identRe)), `COPY $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bREFERENCES\s+%s\.(%s)`, s, identRe)), `REFERENCES $1`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bSELECT\s+pg_catalog\.setval\('%s\.(%s)'`, s, identRe)), `SELECT pg_catalog.setval('$1'`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bDROP\s+(TABLE|SEQUENCE)\s+(?:IF\s+EXISTS\s+)?%s\.(%s)`, s, identRe)), `DROP $1 IF EXISTS $2`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\b(GRANT|REVOKE)\s+(.+?)\s+ON\s+(?:TABLE\s+)?%s\.(%s)`, s, identRe)), `$1 $2 ON $3`},
		{regexp.MustCompile(fmt.Sprintf(`(?i)\bON\s+%s\.(%s)\s+FOR\s+EACH`, s, identRe)), `ON $1 FOR EACH`},
		// Catch-all qualifier stripper. Case sensitive and not anchored to
		// any keyword; it does not special-case quoted identifiers or
		// string literals outside bulk blocks.
		{regexp.MustCompile(fmt.Sprintf(`\b%s\.(%s)`, s, identRe)), `$1`},
	}

	return &Cleaner{
		opts: opts,
		skip: skip,
		subs: subs,
		copyLineSub: substitution{
			re:   regexp.MustCompile(fmt.Sprintf(`(?i)\bCOPY\s+%s\.(%s)`, s, identRe)),
			repl: `COPY $1`,
		},
		now: time.Now,
	}, nil
}

// CleanLines rewrites the document from r into w. It returns an error only
// for read or write failures; statement shapes it does not recognize are
// passed through unmodified.
func (c *Cleaner) CleanLines(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	// A previous cleaning pass leaves its header as ordinary comment and
	// search-path lines, which the drop rules below remove. Writing the
	// header exactly once here keeps repeated cleaning from accumulating
	// headers.
	if c.opts.TargetSchema != "" {
		if err := c.writeHeader(bw); err != nil {
			return err
		}
	}

	inCopyBlock := false

	for {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("error reading input: %w", readErr)
		}
		if raw == "" && readErr == io.EOF {
			break
		}

		line := strings.TrimSuffix(raw, "\n")

		if inCopyBlock {
			if copyEndPattern.MatchString(line) {
				inCopyBlock = false
				if _, err := bw.WriteString(line + "\n"); err != nil {
					return fmt.Errorf("error writing output: %w", err)
				}
				continue
			}
			// Opaque payload: reproduce the raw line byte for byte.
			if _, err := bw.WriteString(raw); err != nil {
				return fmt.Errorf("error writing output: %w", err)
			}
			if readErr == io.EOF {
				break
			}
			continue
		}

		if copyStartPattern.MatchString(line) {
			inCopyBlock = true
			if !c.opts.KeepSchemaPrefix {
				line = c.copyLineSub.re.ReplaceAllString(line, c.copyLineSub.repl)
			}
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("error writing output: %w", err)
			}
			if readErr == io.EOF {
				break
			}
			continue
		}

		if cleaned, keep := c.cleanStatementLine(line); keep {
			if _, err := bw.WriteString(cleaned + "\n"); err != nil {
				return fmt.Errorf("error writing output: %w", err)
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error flushing output: %w", err)
	}
	return nil
}

func (c *Cleaner) cleanStatementLine(line string) (string, bool) {
	for _, re := range c.skip {
		if re.MatchString(line) {
			return "", false
		}
	}
	if !c.opts.KeepSchemaPrefix {
		for _, sub := range c.subs {
			line = sub.re.ReplaceAllString(line, sub.repl)
		}
	}
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	return line, true
}

func (c *Cleaner) writeHeader(w *bufio.Writer) error {
	var b strings.Builder
	b.WriteString(headerMarker + "\n")
	fmt.Fprintf(&b, "-- Target schema: %s\n", c.opts.TargetSchema)
	fmt.Fprintf(&b, "-- Generated: %s\n\n", c.now().Format(time.RFC3339))
	b.WriteString("-- Set search path to target schema\n")
	fmt.Fprintf(&b, "SET search_path = %s, public;\n\n", c.opts.TargetSchema)
	if _, err := w.WriteString(b.String()); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	return nil
}

// Clean rewrites an in-memory document and returns the result.
func (c *Cleaner) Clean(content string) (string, error) {
	var out strings.Builder
	if err := c.CleanLines(strings.NewReader(content), &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// CleanFile rewrites src into dst. Unlike per-line rewriting, read or write
// failures here are terminal.
func (c *Cleaner) CleanFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("cannot create output file: %w", err)
	}

	if err := c.CleanLines(in, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("cannot close output file: %w", err)
	}
	return nil
}

// StripPsqlMeta removes psql meta-command lines, such as the restrict
// commands newer pg_dump versions emit, from a DDL fragment.
func StripPsqlMeta(content string) string {
	return metaCommandPattern.ReplaceAllString(content, "")
}

// CollapseBlankLines reduces runs of three or more newlines to a single
// blank line.
func CollapseBlankLines(content string) string {
	return blankRunPattern.ReplaceAllString(content, "\n\n")
}
