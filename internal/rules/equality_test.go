package rules

import (
	"testing"

	"github.com/solatis/linekeeper/internal/types"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs float64", 5, 5.0, true},
		{"int64 vs int", int64(7), 7, true},
		{"different numbers", 1, 2, false},
		{"strings", "run", "run", true},
		{"string vs number", "5", 5, false},
		{"bools", true, true, true},
		{"both nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"named enum", types.StateRun, types.StateRun, true},
		{"named enum differs", types.StateRun, types.StateOff, false},
		{"slices deep equal", []int{1, 2}, []int{1, 2}, true},
		{"slices differ", []int{1, 2}, []int{2, 1}, false},
		{"different types", "true", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, ""},
		{"abc", "abc"},
		{42, "42"},
		{int64(-3), "-3"},
		{2.5, "2.5"},
		{true, "true"},
		{false, "false"},
		{types.StateRun, "run"},
		{types.ItemID(9), "9"},
	}
	for _, tt := range tests {
		if got := Render(tt.value); got != tt.want {
			t.Errorf("Render(%#v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestRenderedEqual(t *testing.T) {
	if !RenderedEqual(types.StateRun, "run") {
		t.Errorf("RenderedEqual(StateRun, \"run\") = false, want true")
	}
	if !RenderedEqual(true, "true") {
		t.Errorf("RenderedEqual(true, \"true\") = false, want true")
	}
	if RenderedEqual(1, "1.0") {
		t.Errorf("RenderedEqual(1, \"1.0\") = true, want false")
	}
}
