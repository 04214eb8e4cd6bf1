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

// Package filters provides composable row-selection predicates for per-table
// backup filtering. Every filter renders a complete single-statement SELECT
// for a table; composition works by extracting and re-combining WHERE clause
// text, never by nesting full statements.
package filters

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgsubset/pgsubset/internal/db/postgres/querybuilder"
)

// Filter renders a complete SELECT statement for the given table. The schema
// qualifies the table reference; an empty schema falls back to public.
type Filter interface {
	Build(table, schema string) string
}

// Raw passes a complete user-provided SELECT statement through unchanged.
// The table and schema arguments are ignored.
type Raw string

func (r Raw) Build(_, _ string) string {
	return string(r)
}

func (r Raw) String() string {
	q := string(r)
	if len(q) > 50 {
		q = q[:50] + "..."
	}
	return fmt.Sprintf("Raw(%s)", q)
}

const timestampLayout = "2006-01-02 15:04:05"

// DateRange filters rows by a date or timestamp column. Inclusive ranges
// render BETWEEN; exclusive ranges render a half-open interval.
type DateRange struct {
	Column    string
	Start     string
	End       string
	Inclusive bool
}

// NewDateRange accepts string or time.Time bounds. Other types are rejected.
func NewDateRange(column string, start, end any, inclusive bool) (*DateRange, error) {
	startStr, err := formatDate(start)
	if err != nil {
		return nil, err
	}
	endStr, err := formatDate(end)
	if err != nil {
		return nil, err
	}
	return &DateRange{Column: column, Start: startStr, End: endStr, Inclusive: inclusive}, nil
}

func formatDate(v any) (string, error) {
	switch d := v.(type) {
	case string:
		return d, nil
	case time.Time:
		return d.Format(timestampLayout), nil
	default:
		return "", fmt.Errorf("invalid date type: %T", v)
	}
}

func (f *DateRange) Build(table, schema string) string {
	var condition string
	if f.Inclusive {
		condition = fmt.Sprintf("%s BETWEEN '%s' AND '%s'", f.Column, f.Start, f.End)
	} else {
		condition = fmt.Sprintf("%s >= '%s' AND %s < '%s'", f.Column, f.Start, f.Column, f.End)
	}
	return fmt.Sprintf("%s WHERE %s", querybuilder.SelectAll(table, schema), condition)
}

func (f *DateRange) String() string {
	return fmt.Sprintf("DateRange(%s: %s to %s)", f.Column, f.Start, f.End)
}

// ValueSet filters rows whose column value belongs to a fixed set, the usual
// case being foreign key values. An empty set selects no rows at all.
type ValueSet struct {
	Column string
	Values []any
}

func NewValueSet(column string, values ...any) *ValueSet {
	return &ValueSet{Column: column, Values: values}
}

func (f *ValueSet) Build(table, schema string) string {
	sel := querybuilder.SelectAll(table, schema)
	if len(f.Values) == 0 {
		return fmt.Sprintf("%s WHERE 1=0", sel)
	}
	rendered := make([]string, len(f.Values))
	for i, v := range f.Values {
		if s, ok := v.(string); ok {
			rendered[i] = fmt.Sprintf("'%s'", s)
		} else {
			rendered[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s WHERE %s IN (%s)", sel, f.Column, strings.Join(rendered, ", "))
}

func (f *ValueSet) String() string {
	return fmt.Sprintf("ValueSet(%s IN %d values)", f.Column, len(f.Values))
}

// Status filters rows by a status column using either an allow list or a
// deny list. Setting both is a construction error. With neither set the
// filter matches every row.
type Status struct {
	Column   string
	Allowed  []string
	Excluded []string
}

func NewStatus(column string, allowed, excluded []string) (*Status, error) {
	if column == "" {
		column = "status"
	}
	if len(allowed) > 0 && len(excluded) > 0 {
		return nil, fmt.Errorf("cannot specify both allowed and excluded statuses")
	}
	return &Status{Column: column, Allowed: allowed, Excluded: excluded}, nil
}

func (f *Status) Build(table, schema string) string {
	var condition string
	switch {
	case len(f.Allowed) > 0:
		condition = fmt.Sprintf("%s IN (%s)", f.Column, quoteJoin(f.Allowed))
	case len(f.Excluded) > 0:
		condition = fmt.Sprintf("%s NOT IN (%s)", f.Column, quoteJoin(f.Excluded))
	default:
		condition = "1=1"
	}
	return fmt.Sprintf("%s WHERE %s", querybuilder.SelectAll(table, schema), condition)
}

func (f *Status) String() string {
	switch {
	case len(f.Allowed) > 0:
		return fmt.Sprintf("Status(allowed: %v)", f.Allowed)
	case len(f.Excluded) > 0:
		return fmt.Sprintf("Status(excluded: %v)", f.Excluded)
	}
	return "Status(no filter)"
}

func quoteJoin(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("'%s'", v)
	}
	return strings.Join(quoted, ", ")
}

const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// Composite joins the WHERE conditions of its sub-filters with AND or OR.
// Sub-filters that render no WHERE clause contribute nothing.
type Composite struct {
	Operator string
	Filters  []Filter
}

func NewComposite(operator string, subFilters ...Filter) (*Composite, error) {
	operator = strings.ToUpper(operator)
	if operator != OperatorAnd && operator != OperatorOr {
		return nil, fmt.Errorf("invalid operator: %s, must be AND or OR", operator)
	}
	return &Composite{Operator: operator, Filters: subFilters}, nil
}

func (f *Composite) Build(table, schema string) string {
	sel := querybuilder.SelectAll(table, schema)
	var conditions []string
	for _, sub := range f.Filters {
		query := sub.Build(table, schema)
		if idx := strings.Index(strings.ToUpper(query), "WHERE"); idx != -1 {
			condition := strings.TrimSpace(query[idx+len("WHERE"):])
			conditions = append(conditions, "("+condition+")")
		}
	}
	if len(conditions) == 0 {
		return sel
	}
	return fmt.Sprintf("%s WHERE %s", sel, strings.Join(conditions, " "+f.Operator+" "))
}

func (f *Composite) String() string {
	parts := make([]string, len(f.Filters))
	for i, sub := range f.Filters {
		parts[i] = fmt.Sprintf("%v", sub)
	}
	return fmt.Sprintf("Composite(%s)", strings.Join(parts, " "+f.Operator+" "))
}
