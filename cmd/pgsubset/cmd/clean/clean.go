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

package clean

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgsubset/pgsubset/internal/db/postgres/cleaner"
	pgDomains "github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/utils/ioutils"
	"github.com/pgsubset/pgsubset/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "clean",
		Short: "rewrite an existing SQL backup file for restoring into a different schema",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Fatal().Err(err).Msg("")
			}

			if inputFile == "" || outputFile == "" {
				log.Fatal().Msg("input and output files cannot be empty")
			}

			sourceSchema := sourceSchemaFlag
			if sourceSchema == "" {
				sourceSchema = Config.Backup.SourceSchema
			}
			targetSchema := targetSchemaFlag
			if targetSchema == "" {
				targetSchema = Config.Backup.TargetSchema
			}

			c, err := cleaner.New(cleaner.Options{
				SourceSchema:     sourceSchema,
				TargetSchema:     targetSchema,
				KeepSchemaPrefix: keepSchemaPrefix,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("fatal")
			}

			if err := cleanFile(c, inputFile, outputFile); err != nil {
				log.Fatal().Err(err).Msg("cannot clean SQL file")
			}
			log.Info().Str("Input", inputFile).Str("Output", outputFile).Msg("SQL file cleaned")
		},
	}
	Config = pgDomains.NewConfig()

	inputFile        string
	outputFile       string
	sourceSchemaFlag string
	targetSchemaFlag string
	keepSchemaPrefix bool
)

func init() {
	Cmd.Flags().StringVarP(&inputFile, "input", "i", "", "SQL file to clean, .gz input is decompressed")
	Cmd.Flags().StringVarP(&outputFile, "output", "o", "", "cleaned SQL file path, .gz output is compressed")
	Cmd.Flags().StringVar(&sourceSchemaFlag, "source-schema", "", "schema qualifier to strip")
	Cmd.Flags().StringVar(&targetSchemaFlag, "target-schema", "", "schema to retarget the restore to")
	Cmd.Flags().BoolVar(&keepSchemaPrefix, "keep-schema-prefix", false, "keep schema qualifiers, only drop session noise")
}

func cleanFile(c *cleaner.Cleaner, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	var in io.ReadCloser = f
	if strings.HasSuffix(src, ".gz") {
		if in, err = ioutils.NewGzipReader(f, Config.Backup.Pgzip); err != nil {
			return err
		}
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	var out io.WriteCloser = outFile
	if strings.HasSuffix(dst, ".gz") {
		out = ioutils.NewGzipWriter(outFile, Config.Backup.Pgzip)
	}

	if err := c.CleanLines(in, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
