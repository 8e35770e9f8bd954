package colors

import "testing"

func TestColorizeDisabled(t *testing.T) {
	prev := IsColorEnabled()
	defer SetColorEnabled(prev)

	SetColorEnabled(false)
	if got := CommitID("abc"); got != "abc" {
		t.Errorf("CommitID with colors off = %q", got)
	}
	if got := Phase("public"); got != "public" {
		t.Errorf("Phase with colors off = %q", got)
	}
}

func TestColorizeEnabled(t *testing.T) {
	prev := IsColorEnabled()
	defer SetColorEnabled(prev)

	SetColorEnabled(true)
	if got, want := Trouble("orphan"), BrightRed+"orphan"+ColorReset; got != want {
		t.Errorf("Trouble = %q, want %q", got, want)
	}
	if got := Phase("unknown"); got != "unknown" {
		t.Errorf("unknown phase should not be colored, got %q", got)
	}
}
