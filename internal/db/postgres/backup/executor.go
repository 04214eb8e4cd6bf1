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

	"github.com/jackc/pgx/v5"

	"github.com/pgsubset/pgsubset/internal/domains"
)

// Executor is the narrow database surface the engine needs: catalog queries,
// scalar queries, column discovery and COPY streaming. One Executor wraps
// one connection held for the duration of a run.
type Executor interface {
	// QueryStrings returns the first column of every row as strings.
	QueryStrings(ctx context.Context, sql string) ([]string, error)
	// QueryInt64 returns the single value of a single-row scalar query.
	QueryInt64(ctx context.Context, sql string) (int64, error)
	// ColumnNames executes a query and returns its result column names
	// without consuming any data rows.
	ColumnNames(ctx context.Context, sql string) ([]string, error)
	// CopyTo streams the output of a COPY ... TO STDOUT statement into w
	// and returns the number of rows copied.
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
	Close(ctx context.Context) error
}

// ConnectFunc opens a new Executor. The engine takes it as a factory so
// tests can substitute a fake database.
type ConnectFunc func(ctx context.Context) (Executor, error)

// PgxConnect returns the production ConnectFunc backed by a single pgx
// connection.
func PgxConnect(cfg domains.ConnectionConfig) ConnectFunc {
	return func(ctx context.Context) (Executor, error) {
		conn, err := pgx.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, &ConnectionError{Err: err}
		}
		return &pgxExecutor{conn: conn}, nil
	}
}

type pgxExecutor struct {
	conn *pgx.Conn
}

func (e *pgxExecutor) QueryStrings(ctx context.Context, sql string) ([]string, error) {
	rows, err := e.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return values, nil
}

func (e *pgxExecutor) QueryInt64(ctx context.Context, sql string) (int64, error) {
	var v int64
	if err := e.conn.QueryRow(ctx, sql).Scan(&v); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return v, nil
}

func (e *pgxExecutor) ColumnNames(ctx context.Context, sql string) ([]string, error) {
	rows, err := e.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	names := make([]string, len(fds))
	for i, fd := range fds {
		names[i] = fd.Name
	}

	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

func (e *pgxExecutor) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	tag, err := e.conn.PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return 0, fmt.Errorf("copy error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (e *pgxExecutor) Close(ctx context.Context) error {
	return e.conn.Close(ctx)
}
