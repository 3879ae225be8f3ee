package workspace

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "/home/user/project", "/home/user/project"},
		{"trailing separator", "/home/user/project/", "/home/user/project"},
		{"double separator", "/home/user//project", "/home/user/project"},
		{"dot segment", "/home/user/./project", "/home/user/project"},
		{"dotdot segment", "/home/user/other/../project", "/home/user/project"},
		{"backslash separators", "\\home\\user\\project", "/home/user/project"},
		{"root", "/", "/"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(tt.in)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{
		"/home/user/project/",
		"/home//user/./project",
		"/a/b/../c",
	}

	for _, in := range inputs {
		once := NormalizePath(in)
		twice := NormalizePath(once)
		if once != twice {
			t.Errorf("NormalizePath not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizePathEquivalentSpellings(t *testing.T) {
	spellings := []string{
		"/home/user/project",
		"/home/user/project/",
		"/home/user//project",
		"/home/user/./project",
		"/home/user/x/../project",
	}

	want := NormalizePath(spellings[0])
	for _, s := range spellings[1:] {
		if got := NormalizePath(s); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", s, got, want)
		}
	}
}
