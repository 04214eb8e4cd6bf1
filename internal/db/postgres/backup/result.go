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
	"fmt"
	"time"
)

// TableStats is the per-table breakdown of a successful section.
type TableStats struct {
	Rows    int64
	Bytes   int64
	Columns int
}

// Result is the outcome record of one backup run. It is populated once when
// the run finishes and never mutated afterwards. A failed run carries the
// error description and elapsed time with zeroed file statistics.
type Result struct {
	Success      bool
	FilePath     string
	SizeBytes    int64
	TablesCount  int
	TotalRows    int64
	Duration     time.Duration
	ErrorMessage string
	Metadata     map[string]any
	Tables       map[string]TableStats
}

func (r *Result) String() string {
	if r.Success {
		return fmt.Sprintf(
			"Backup successful: %s (%d bytes, %d tables, %d rows, %.2fs)",
			r.FilePath, r.SizeBytes, r.TablesCount, r.TotalRows, r.Duration.Seconds(),
		)
	}
	return fmt.Sprintf("Backup failed: %s", r.ErrorMessage)
}
