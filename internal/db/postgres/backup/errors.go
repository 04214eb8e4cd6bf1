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
	"sort"
	"strings"
)

// ConnectionError reports a failure to open the database connection. It
// always aborts the run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FilterValidationError aggregates the validation failures of every failing
// table so that one run reports them all at once.
type FilterValidationError struct {
	Tables map[string][]string
}

func (e *FilterValidationError) Error() string {
	names := make([]string, 0, len(e.Tables))
	for name := range e.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Tables[name], "; ")))
	}
	return "filter validation failed: " + strings.Join(parts, ", ")
}

// CreationError reports a structural failure while producing the backup
// document, such as a filtered query yielding no describable columns or the
// cleaning pipeline breaking mid-run.
type CreationError struct {
	Msg string
	Err error
}

func (e *CreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports invalid engine configuration, such as a target
// schema name that is not a plain SQL identifier.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}
