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

// Package pgdump shells out to the pg_dump executable to obtain per-table
// structural DDL. Only schema-only dumps are performed here; data always
// travels through COPY streaming on the live connection.
package pgdump

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pgsubset/pgsubset/internal/utils/cmd_runner"
)

const pgDumpExecutable = "pg_dump"

// DefaultTimeout bounds a single pg_dump invocation. Structure dumps are
// small; anything slower means the server is unreachable or wedged.
const DefaultTimeout = 60 * time.Second

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	DbName   string
}

type PgDump struct {
	BinPath string
	Timeout time.Duration
	options Options
}

func NewPgDump(binPath string, options Options) *PgDump {
	return &PgDump{
		BinPath: binPath,
		Timeout: DefaultTimeout,
		options: options,
	}
}

// DumpTableStructure runs pg_dump for a single table in schema-only mode
// without owner or privilege statements and returns the captured DDL text.
func (pd *PgDump) DumpTableStructure(ctx context.Context, schema, table string) (string, error) {
	args := []string{
		"--host", pd.options.Host,
		"--port", strconv.Itoa(pd.options.Port),
		"--username", pd.options.Username,
		"--dbname", pd.options.DbName,
		"--schema-only",
		"--no-owner",
		"--no-privileges",
		"--table", fmt.Sprintf("%s.%s", schema, table),
	}

	env := append(os.Environ(), "PGPASSWORD="+pd.options.Password)

	ctx, cancel := context.WithTimeout(ctx, pd.Timeout)
	defer cancel()

	executable := path.Join(pd.BinPath, pgDumpExecutable)
	log.Debug().
		Str("Table", fmt.Sprintf("%s.%s", schema, table)).
		Msgf("pg_dump: %s", executable)

	out, err := cmd_runner.Output(ctx, &log.Logger, env, executable, args...)
	if err != nil {
		return "", fmt.Errorf("cannot dump structure for table %s.%s: %w", schema, table, err)
	}
	return out, nil
}
