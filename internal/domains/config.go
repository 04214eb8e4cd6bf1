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

package domains

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pgsubset/pgsubset/internal/db/postgres/querybuilder"
	"github.com/pgsubset/pgsubset/internal/exporters/directory"
	"github.com/pgsubset/pgsubset/internal/exporters/s3"
)

var (
	Cfg  *Config
	once sync.Once
)

const (
	defaultPgPort       = 5432
	defaultSourceSchema = "public"

	ExportTypeDirectory = "directory"
	ExportTypeS3        = "s3"
)

func NewConfig() *Config {
	once.Do(
		func() {
			Cfg = &Config{
				Connection: ConnectionConfig{
					Host:     "localhost",
					Port:     defaultPgPort,
					Username: "postgres",
					DbName:   "postgres",
				},
				Backup: BackupConfig{
					Delimiter:       querybuilder.DefaultCopyDelimiter,
					NullString:      querybuilder.DefaultCopyNullString,
					IncludeHeader:   true,
					DisableTriggers: true,
					DisableFsync:    true,
					CleanOutput:     true,
					SourceSchema:    defaultSourceSchema,
				},
				Export: ExportConfig{
					S3:        s3.NewConfig(),
					Directory: directory.NewConfig(),
				},
			}
		},
	)
	return Cfg
}

type Config struct {
	Common     Common           `mapstructure:"common" yaml:"common" json:"common"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection" json:"connection"`
	Backup     BackupConfig     `mapstructure:"backup" yaml:"backup" json:"backup"`
	Export     ExportConfig     `mapstructure:"export" yaml:"export" json:"export"`
}

type Common struct {
	PgBinPath string `mapstructure:"pg_bin_path" yaml:"pg_bin_path,omitempty" json:"pg_bin_path,omitempty"`
}

type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format,omitempty"`
	Level  string `mapstructure:"level" yaml:"level" json:"level,omitempty"`
}

// ConnectionConfig holds the connection parameters of the database to back
// up. Passed by value everywhere; never mutated after decoding.
type ConnectionConfig struct {
	Host     string `mapstructure:"host" yaml:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port" json:"port,omitempty"`
	Username string `mapstructure:"username" yaml:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	DbName   string `mapstructure:"dbname" yaml:"dbname" json:"dbname,omitempty"`
}

// DSN renders the keyword/value connection string understood by libpq and
// pgx alike.
func (c ConnectionConfig) DSN() string {
	var parts []string
	if c.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", c.Host))
	}
	if c.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	if c.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", c.Username))
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.DbName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", c.DbName))
	}
	return strings.Join(parts, " ")
}

type BackupConfig struct {
	ExcludedTables []string `mapstructure:"excluded_tables" yaml:"excluded_tables" json:"excluded_tables,omitempty"`
	Delimiter      string   `mapstructure:"delimiter" yaml:"delimiter" json:"delimiter,omitempty"`
	NullString     string   `mapstructure:"null_string" yaml:"null_string" json:"null_string,omitempty"`
	IncludeHeader  bool     `mapstructure:"include_header" yaml:"include_header" json:"include_header"`

	// Restore-time performance hints emitted into the document.
	DisableTriggers bool `mapstructure:"disable_triggers" yaml:"disable_triggers" json:"disable_triggers"`
	DisableFsync    bool `mapstructure:"disable_fsync" yaml:"disable_fsync" json:"disable_fsync"`

	CleanOutput  bool   `mapstructure:"clean_output" yaml:"clean_output" json:"clean_output"`
	TargetSchema string `mapstructure:"target_schema" yaml:"target_schema" json:"target_schema,omitempty"`
	SourceSchema string `mapstructure:"source_schema" yaml:"source_schema" json:"source_schema,omitempty"`

	Compress bool `mapstructure:"compress" yaml:"compress" json:"compress,omitempty"`
	Pgzip    bool `mapstructure:"pgzip" yaml:"pgzip" json:"pgzip,omitempty"`

	// Filters maps table names to complete SELECT statements. The typed
	// filter builders are a library surface; the config file only carries
	// raw queries.
	Filters map[string]string `mapstructure:"filters" yaml:"filters" json:"filters,omitempty"`
}

type ExportConfig struct {
	Type      string            `mapstructure:"type" yaml:"type" json:"type,omitempty"`
	S3        *s3.Config        `mapstructure:"s3" json:"s3,omitempty" yaml:"s3"`
	Directory *directory.Config `mapstructure:"directory" json:"directory,omitempty" yaml:"directory"`
}
