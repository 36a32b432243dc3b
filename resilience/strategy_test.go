package resilience

import "testing"

func TestByPriority(t *testing.T) {
	in := []Strategy{
		{Name: "low", Priority: 0.2},
		{Name: "high", Priority: 1.0},
		{Name: "mid-a", Priority: 0.5},
		{Name: "mid-b", Priority: 0.5},
	}

	out := byPriority(in)

	want := []string{"high", "mid-a", "mid-b", "low"}
	for i, name := range want {
		if out[i].Name != name {
			t.Errorf("out[%d] = %q, want %q (stable descending order)", i, out[i].Name, name)
		}
	}

	// Caller slice stays untouched.
	if in[0].Name != "low" {
		t.Error("byPriority must not mutate its input")
	}
}

func TestMode_String(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{Sequential, "sequential"},
		{Parallel, "parallel"},
		{Mode(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
