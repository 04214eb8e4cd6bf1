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

package builder

import (
	"context"
	"fmt"

	"github.com/pgsubset/pgsubset/internal/domains"
	"github.com/pgsubset/pgsubset/internal/exporters"
	"github.com/pgsubset/pgsubset/internal/exporters/directory"
	"github.com/pgsubset/pgsubset/internal/exporters/s3"
)

// GetExporter instantiates the exporter selected by the config type tag.
func GetExporter(ctx context.Context, cfg *domains.ExportConfig) (exporters.Exporter, error) {
	switch cfg.Type {
	case domains.ExportTypeDirectory:
		if cfg.Directory == nil {
			return nil, fmt.Errorf("directory exporter is not configured")
		}
		return directory.NewExporter(cfg.Directory), nil
	case domains.ExportTypeS3:
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 exporter is not configured")
		}
		return s3.NewExporter(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown export type %s", cfg.Type)
	}
}
