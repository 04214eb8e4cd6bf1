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

package validate

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	backupEngine "github.com/pgsubset/pgsubset/internal/db/postgres/backup"
	"github.com/pgsubset/pgsubset/internal/db/postgres/filters"
	pgDomains "github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/exporters/builder"
	"github.com/pgsubset/pgsubset/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "validate",
		Short: "check the configured filters and export destination without writing a backup",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Fatal().Err(err).Msg("")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			flt, err := filters.ParseAssignments(
				filters.FromRawMap(Config.Backup.Filters), filterAssignments,
			)
			if err != nil {
				log.Fatal().Err(err).Msg("fatal")
			}

			engine := backupEngine.NewEngine(
				Config.Connection, Config.Backup,
				backupEngine.WithPgBinPath(Config.Common.PgBinPath),
			)

			failed := false
			if err := engine.ValidateFilters(ctx, flt); err != nil {
				var validationErr *backupEngine.FilterValidationError
				if !errors.As(err, &validationErr) {
					log.Fatal().Err(err).Msg("cannot validate filters")
				}
				renderFailures(validationErr)
				failed = true
			} else {
				log.Info().Int("Filters", len(flt)).Msg("all filters are valid")
			}

			if Config.Export.Type != "" {
				exporter, err := builder.GetExporter(ctx, &Config.Export)
				if err != nil {
					log.Fatal().Err(err).Msg("fatal")
				}
				if !exporter.ValidateConfig(ctx) {
					log.Error().Str("Type", Config.Export.Type).Msg("export destination is not usable")
					failed = true
				} else {
					log.Info().Str("Type", Config.Export.Type).Msg("export destination is usable")
				}
			}

			if failed {
				os.Exit(1)
			}
		},
	}
	Config = pgDomains.NewConfig()

	filterAssignments []string
)

func init() {
	Cmd.Flags().StringArrayVarP(
		&filterAssignments, "filter", "f", nil,
		"per-table row filter as table=SELECT-statement, overrides config entries",
	)
}

func renderFailures(validationErr *backupEngine.FilterValidationError) {
	tables := make([]string, 0, len(validationErr.Tables))
	for table := range validationErr.Tables {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	prettyWriter := tablewriter.NewWriter(os.Stdout)
	prettyWriter.SetHeader([]string{"table", "error"})
	for _, table := range tables {
		prettyWriter.Append([]string{table, strings.Join(validationErr.Tables[table], "; ")})
	}
	prettyWriter.Render()
}
