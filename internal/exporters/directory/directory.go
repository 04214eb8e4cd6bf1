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

package directory

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pgsubset/pgsubset/internal/exporters"
)

const dirMode os.FileMode = 0750

type Config struct {
	Path      string `mapstructure:"path"`
	Move      bool   `mapstructure:"move,omitempty"`
	CreateDir bool   `mapstructure:"create_dir,omitempty"`
}

func NewConfig() *Config {
	return &Config{
		CreateDir: true,
	}
}

// Exporter copies or moves backup files into a destination directory on the
// local filesystem. Metadata is ignored: a plain directory has nowhere to
// keep it.
type Exporter struct {
	config *Config
}

func NewExporter(cfg *Config) *Exporter {
	return &Exporter{config: cfg}
}

func (e *Exporter) Export(ctx context.Context, backupPath string, _ map[string]any) (string, error) {
	if e.config.CreateDir {
		if err := os.MkdirAll(e.config.Path, dirMode); err != nil {
			return "", &exporters.ExportError{Dest: e.config.Path, Err: errors.Wrap(err, "cannot create destination directory")}
		}
	}

	fileInfo, err := os.Stat(e.config.Path)
	if err != nil || !fileInfo.IsDir() {
		return "", &exporters.ExportError{Dest: e.config.Path, Err: errors.New("destination directory does not exist")}
	}

	destinationPath := filepath.Join(e.config.Path, filepath.Base(backupPath))

	if e.config.Move {
		if err := moveFile(backupPath, destinationPath); err != nil {
			return "", &exporters.ExportError{Dest: e.config.Path, Err: err}
		}
	} else {
		if err := copyFile(backupPath, destinationPath); err != nil {
			return "", &exporters.ExportError{Dest: e.config.Path, Err: err}
		}
	}

	log.Info().
		Str("Source", backupPath).
		Str("Destination", destinationPath).
		Bool("Move", e.config.Move).
		Msg("backup exported to directory")
	return destinationPath, nil
}

func (e *Exporter) ValidateConfig(ctx context.Context) bool {
	dir := e.config.Path
	if _, err := os.Stat(dir); err != nil {
		// Destination absent: check the parent instead, mirroring the
		// create-on-export behavior.
		dir = filepath.Dir(e.config.Path)
		if _, err := os.Stat(dir); err != nil {
			return false
		}
	}
	probe := filepath.Join(dir, ".pgsubset_probe_"+uuid.NewString())
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		log.Warn().Err(err).Str("Probe", probe).Msg("cannot remove write probe")
	}
	return true
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return errors.Wrap(os.Remove(src), "cannot remove source after move")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "cannot open source file")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "cannot create destination file")
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "cannot copy file data")
	}
	return errors.Wrap(out.Close(), "cannot close destination file")
}
