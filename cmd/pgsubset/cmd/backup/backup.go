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
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	backupEngine "github.com/pgsubset/pgsubset/internal/db/postgres/backup"
	"github.com/pgsubset/pgsubset/internal/db/postgres/filters"
	pgDomains "github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/exporters/builder"
	"github.com/pgsubset/pgsubset/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "backup",
		Short: "export a filtered subset of the database as a restorable SQL file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Fatal().Err(err).Msg("")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if outputFile == "" {
				log.Fatal().Msg("output file cannot be empty")
			}

			flt, err := filters.ParseAssignments(
				filters.FromRawMap(Config.Backup.Filters), filterAssignments,
			)
			if err != nil {
				log.Fatal().Err(err).Msg("fatal")
			}

			metadata, err := parseMetadata(metadataEntries)
			if err != nil {
				log.Fatal().Err(err).Msg("fatal")
			}

			engine := backupEngine.NewEngine(
				Config.Connection, Config.Backup,
				backupEngine.WithPgBinPath(Config.Common.PgBinPath),
			)

			result := engine.Backup(ctx, outputFile, &backupEngine.BackupParams{
				Filters:  flt,
				Metadata: metadata,
			})
			if !result.Success {
				log.Fatal().Msg(result.ErrorMessage)
			}

			if Config.Export.Type != "" {
				exporter, err := builder.GetExporter(ctx, &Config.Export)
				if err != nil {
					log.Fatal().Err(err).Msg("fatal")
				}
				location, err := exporter.Export(ctx, result.FilePath, result.Metadata)
				if err != nil {
					log.Fatal().Err(err).Msg("cannot export backup")
				}
				log.Info().Str("Location", location).Msg("backup exported")
			}
		},
	}
	Config = pgDomains.NewConfig()

	outputFile        string
	filterAssignments []string
	metadataEntries   []string
)

func init() {
	Cmd.Flags().StringVarP(&outputFile, "output", "o", "", "output SQL file path")
	Cmd.Flags().StringArrayVarP(
		&filterAssignments, "filter", "f", nil,
		"per-table row filter as table=SELECT-statement, overrides config entries",
	)
	Cmd.Flags().StringArrayVarP(
		&metadataEntries, "metadata", "m", nil, "metadata entry as key=value, embedded into the document header",
	)

	Cmd.Flags().StringSliceP("exclude-table", "T", []string{}, "do NOT back up the specified table(s)")
	Cmd.Flags().StringP("source-schema", "", "public", "schema to back up tables from")
	Cmd.Flags().StringP("target-schema", "", "", "rewrite the document for restoring into this schema")
	Cmd.Flags().BoolP("clean-output", "", true, "strip schema qualifiers and session noise from the document")
	Cmd.Flags().BoolP("compress", "z", false, "gzip-compress the final artifact")
	Cmd.Flags().BoolP("pgzip", "", false, "use parallel gzip implementation for compression")

	// Connection options:
	Cmd.Flags().StringP("dbname", "d", "postgres", "database to back up")
	Cmd.Flags().StringP("host", "h", "localhost", "database server host or socket directory")
	Cmd.Flags().IntP("port", "p", 5432, "database server port number")
	Cmd.Flags().StringP("username", "U", "postgres", "connect as specified database user")

	for flagName, key := range map[string]string{
		"exclude-table": "backup.excluded_tables",
		"source-schema": "backup.source_schema",
		"target-schema": "backup.target_schema",
		"clean-output":  "backup.clean_output",
		"compress":      "backup.compress",
		"pgzip":         "backup.pgzip",

		"dbname":   "connection.dbname",
		"host":     "connection.host",
		"port":     "connection.port",
		"username": "connection.username",
	} {
		flag := Cmd.Flags().Lookup(flagName)
		if err := viper.BindPFlag(key, flag); err != nil {
			log.Fatal().Err(err).Msg("")
		}
	}

	if err := viper.BindEnv("connection.dbname", "PGDATABASE"); err != nil {
		panic(err)
	}
	if err := viper.BindEnv("connection.host", "PGHOST"); err != nil {
		panic(err)
	}
	if err := viper.BindEnv("connection.port", "PGPORT"); err != nil {
		panic(err)
	}
	if err := viper.BindEnv("connection.username", "PGUSER"); err != nil {
		panic(err)
	}
	if err := viper.BindEnv("connection.password", "PGPASSWORD"); err != nil {
		panic(err)
	}
}

func parseMetadata(entries []string) (map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(entries))
	for _, e := range entries {
		key, value, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, expected key=value", e)
		}
		metadata[strings.TrimSpace(key)] = value
	}
	return metadata, nil
}
