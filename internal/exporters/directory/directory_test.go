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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBackupFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "backup.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1;\n"), 0o600))
	return path
}

func TestExporter_Export_Copy(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "exports")
	backupPath := writeBackupFixture(t, srcDir)

	e := NewExporter(&Config{Path: dstDir, CreateDir: true})
	location, err := e.Export(context.Background(), backupPath, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "backup.sql"), location)

	content, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n", string(content))

	// Source stays in place on copy.
	_, err = os.Stat(backupPath)
	require.NoError(t, err)
}

func TestExporter_Export_Move(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	backupPath := writeBackupFixture(t, srcDir)

	e := NewExporter(&Config{Path: dstDir, Move: true, CreateDir: true})
	location, err := e.Export(context.Background(), backupPath, nil)
	require.NoError(t, err)

	_, err = os.Stat(location)
	require.NoError(t, err)
	_, err = os.Stat(backupPath)
	assert.True(t, os.IsNotExist(err))
}

func TestExporter_Export_MissingDestination(t *testing.T) {
	srcDir := t.TempDir()
	backupPath := writeBackupFixture(t, srcDir)

	e := NewExporter(&Config{Path: filepath.Join(srcDir, "missing", "nested"), CreateDir: false})
	_, err := e.Export(context.Background(), backupPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestExporter_ValidateConfig(t *testing.T) {
	t.Run("existing writable directory", func(t *testing.T) {
		e := NewExporter(&Config{Path: t.TempDir()})
		assert.True(t, e.ValidateConfig(context.Background()))
	})

	t.Run("absent directory with existing parent", func(t *testing.T) {
		e := NewExporter(&Config{Path: filepath.Join(t.TempDir(), "not_yet_created"), CreateDir: true})
		assert.True(t, e.ValidateConfig(context.Background()))
	})

	t.Run("absent directory and parent", func(t *testing.T) {
		e := NewExporter(&Config{Path: filepath.Join(t.TempDir(), "a", "b", "c")})
		assert.False(t, e.ValidateConfig(context.Background()))
	})
}
