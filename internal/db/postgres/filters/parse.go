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

package filters

import (
	"fmt"
	"strings"
)

// FromRawMap lifts config-file filter entries, table name to complete SELECT
// statement, into Filter values.
func FromRawMap(raw map[string]string) map[string]Filter {
	if len(raw) == 0 {
		return nil
	}
	flt := make(map[string]Filter, len(raw))
	for table, query := range raw {
		flt[table] = Raw(query)
	}
	return flt
}

// ParseAssignments parses command-line filter assignments of the form
// table=SELECT-statement into the given filter map, overriding entries that
// already exist. A nil map is allocated on first use.
func ParseAssignments(flt map[string]Filter, assignments []string) (map[string]Filter, error) {
	for _, a := range assignments {
		table, query, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(table) == "" || strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("invalid filter assignment %q, expected table=SELECT-statement", a)
		}
		if flt == nil {
			flt = make(map[string]Filter)
		}
		flt[strings.TrimSpace(table)] = Raw(strings.TrimSpace(query))
	}
	return flt, nil
}
