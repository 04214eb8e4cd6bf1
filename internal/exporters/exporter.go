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

// Package exporters moves finished backup artifacts to their long-term
// destination: another directory on the local filesystem or an S3 bucket.
package exporters

import (
	"context"
	"fmt"
)

// Exporter ships a finished backup file to a destination and returns the
// resulting location string. Metadata values are attached where the
// destination supports it and silently ignored where it does not.
type Exporter interface {
	Export(ctx context.Context, backupPath string, metadata map[string]any) (string, error)
	// ValidateConfig reports whether the destination is reachable and
	// writable with the current configuration.
	ValidateConfig(ctx context.Context) bool
}

// ExportError wraps a destination failure with the destination description.
type ExportError struct {
	Dest string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Dest, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
