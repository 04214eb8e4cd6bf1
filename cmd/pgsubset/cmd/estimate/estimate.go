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

package estimate

import (
	"context"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	backupEngine "github.com/pgsubset/pgsubset/internal/db/postgres/backup"
	"github.com/pgsubset/pgsubset/internal/db/postgres/filters"
	pgDomains "github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "estimate",
		Short: "count the rows each table would contribute under the configured filters",
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

			estimates, err := engine.EstimateSize(ctx, flt)
			if err != nil {
				log.Fatal().Err(err).Msg("cannot estimate backup size")
			}

			render(estimates, flt)
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

func render(estimates map[string]int64, flt map[string]filters.Filter) {
	tables := make([]string, 0, len(estimates))
	for table := range estimates {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var total int64
	prettyWriter := tablewriter.NewWriter(os.Stdout)
	prettyWriter.SetHeader([]string{"table", "filtered", "rows"})
	for _, table := range tables {
		filtered := "no"
		if _, ok := flt[table]; ok {
			filtered = "yes"
		}
		prettyWriter.Append([]string{table, filtered, strconv.FormatInt(estimates[table], 10)})
		total += estimates[table]
	}
	prettyWriter.SetFooter([]string{"total", "", strconv.FormatInt(total, 10)})
	prettyWriter.Render()
}
