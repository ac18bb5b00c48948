package worktree

import "testing"

func TestSlugBasic(t *testing.T) {
	cases := map[string]string{
		"Setup Database":        "setup-database",
		"  leading/trailing  ":  "leading-trailing",
		"Already-slugged":       "already-slugged",
		"!!!":                   "task",
		"":                      "task",
		"multi   space___mix!!": "multi-space-mix",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugTruncatesAndRetrims(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa-trailing-bit"
	got := Slug(long)
	if len(got) > MaxTaskNameLength {
		t.Fatalf("expected length <= %d, got %d (%q)", MaxTaskNameLength, len(got), got)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("expected truncated slug to not end in hyphen: %q", got)
	}
}

func TestParseSessionID(t *testing.T) {
	if id, ok := ParseSessionID("session-3-setup-database"); !ok || id != 3 {
		t.Errorf("expected (3, true), got (%d, %v)", id, ok)
	}
	if _, ok := ParseSessionID("not-a-session-dir"); ok {
		t.Errorf("expected no match")
	}
}
