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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaw_Build(t *testing.T) {
	f := Raw("SELECT * FROM public.users WHERE id < 100")
	assert.Equal(t, "SELECT * FROM public.users WHERE id < 100", f.Build("ignored", "ignored"))
}

func TestDateRange_Build(t *testing.T) {
	tests := []struct {
		name      string
		start     any
		end       any
		inclusive bool
		expected  string
	}{
		{
			name:      "inclusive renders between",
			start:     "2024-01-01",
			end:       "2024-12-31",
			inclusive: true,
			expected:  "SELECT * FROM public.orders WHERE created_at BETWEEN '2024-01-01' AND '2024-12-31'",
		},
		{
			name:     "exclusive renders half open interval",
			start:    "2024-01-01",
			end:      "2025-01-01",
			expected: "SELECT * FROM public.orders WHERE created_at >= '2024-01-01' AND created_at < '2025-01-01'",
		},
		{
			name:      "time values are formatted",
			start:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
			end:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			inclusive: true,
			expected:  "SELECT * FROM public.orders WHERE created_at BETWEEN '2024-03-01 10:30:00' AND '2024-04-01 00:00:00'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewDateRange("created_at", tt.start, tt.end, tt.inclusive)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f.Build("orders", ""))
		})
	}
}

func TestNewDateRange_InvalidType(t *testing.T) {
	_, err := NewDateRange("created_at", 42, "2024-01-01", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date type")
}

func TestValueSet_Build(t *testing.T) {
	tests := []struct {
		name     string
		values   []any
		expected string
	}{
		{
			name:     "integers",
			values:   []any{1, 2, 3},
			expected: "SELECT * FROM public.orders WHERE customer_id IN (1, 2, 3)",
		},
		{
			name:     "strings are quoted",
			values:   []any{"a", "b"},
			expected: "SELECT * FROM public.orders WHERE customer_id IN ('a', 'b')",
		},
		{
			name:     "empty set selects nothing",
			values:   nil,
			expected: "SELECT * FROM public.orders WHERE 1=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewValueSet("customer_id", tt.values...)
			assert.Equal(t, tt.expected, f.Build("orders", ""))
		})
	}
}

func TestStatus_Build(t *testing.T) {
	t.Run("allowed list", func(t *testing.T) {
		f, err := NewStatus("state", []string{"active", "pending"}, nil)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT * FROM public.users WHERE state IN ('active', 'pending')",
			f.Build("users", ""),
		)
	})

	t.Run("excluded list", func(t *testing.T) {
		f, err := NewStatus("", nil, []string{"deleted"})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT * FROM public.users WHERE status NOT IN ('deleted')",
			f.Build("users", ""),
		)
	})

	t.Run("no lists matches everything", func(t *testing.T) {
		f, err := NewStatus("status", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM public.users WHERE 1=1", f.Build("users", ""))
	})

	t.Run("both lists rejected", func(t *testing.T) {
		_, err := NewStatus("status", []string{"a"}, []string{"b"})
		require.Error(t, err)
	})
}

func TestComposite_Build(t *testing.T) {
	dateFilter, err := NewDateRange("created_at", "2024-01-01", "2024-12-31", true)
	require.NoError(t, err)
	statusFilter, err := NewStatus("status", []string{"active"}, nil)
	require.NoError(t, err)

	t.Run("and combines parenthesized conditions", func(t *testing.T) {
		f, err := NewComposite("and", dateFilter, statusFilter)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT * FROM public.users WHERE "+
				"(created_at BETWEEN '2024-01-01' AND '2024-12-31') AND (status IN ('active'))",
			f.Build("users", ""),
		)
	})

	t.Run("subfilter without where contributes nothing", func(t *testing.T) {
		f, err := NewComposite(OperatorOr, Raw("SELECT * FROM public.users"))
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM public.users", f.Build("users", ""))
	})

	t.Run("invalid operator rejected", func(t *testing.T) {
		_, err := NewComposite("XOR", dateFilter)
		require.Error(t, err)
	})
}

func TestFromRawMap(t *testing.T) {
	assert.Nil(t, FromRawMap(nil))

	flt := FromRawMap(map[string]string{"users": "SELECT * FROM public.users WHERE id < 10"})
	require.Len(t, flt, 1)
	assert.Equal(t, "SELECT * FROM public.users WHERE id < 10", flt["users"].Build("users", ""))
}

func TestParseAssignments(t *testing.T) {
	t.Run("valid assignment", func(t *testing.T) {
		flt, err := ParseAssignments(nil, []string{"users=SELECT * FROM public.users WHERE id < 10"})
		require.NoError(t, err)
		require.Len(t, flt, 1)
		assert.Equal(t, "SELECT * FROM public.users WHERE id < 10", flt["users"].Build("users", ""))
	})

	t.Run("overrides existing entry", func(t *testing.T) {
		flt := map[string]Filter{"users": Raw("SELECT 1")}
		flt, err := ParseAssignments(flt, []string{"users=SELECT 2"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT 2", flt["users"].Build("users", ""))
	})

	t.Run("missing query rejected", func(t *testing.T) {
		_, err := ParseAssignments(nil, []string{"users"})
		require.Error(t, err)
	})
}
