package pathutil

import "testing"

func TestNormalizeBasics(t *testing.T) {
	cases := map[string]string{
		"":                "/",
		".":                ".",
		"/":                "/",
		"/a/b":             "/a/b",
		"/a/./b":           "/a/b",
		"/a//b":            "/a/b",
		"/a/b/..":          "/a",
		"/a/../b":          "/b",
		"/../../a":         "/a",
		"a/../../b":        "../b",
		"../a":             "../a",
		"a/b/../../c":      "c",
		"a/./b":            "a/b",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", ".", "/", "/a/b", "/a/./b", "/a/b/..", "/../../a", "a/../../b", "../a", "a/b/../../c"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestRootEscapeSafety(t *testing.T) {
	absolutePaths := []string{"/../a", "/../../a", "/a/../../b", "/a/b/../../../c"}
	for _, p := range absolutePaths {
		n := Normalize(p)
		if n[0] != '/' {
			t.Errorf("Normalize(%q) = %q does not start with /", p, n)
		}
		if len(n) >= 3 && n[:3] == "/.." {
			t.Errorf("Normalize(%q) = %q begins with /.. (root escape)", p, n)
		}
		if !IsSafe(n) {
			t.Errorf("Normalize(%q) = %q should be judged safe", p, n)
		}
	}
}

func TestValidateRemotePathRejectsTraversal(t *testing.T) {
	bad := []string{
		"../etc/passwd",
		"/a/../../etc",
		"/a/%2e%2e/etc",
		"/a/%2E%2E/b",
		"/a%2f..%2fb",
		"/a\x00b",
		"/a%5c..%5cb",
	}
	for _, p := range bad {
		if _, err := ValidateRemotePath(p); err == nil {
			t.Errorf("ValidateRemotePath(%q) should have failed", p)
		}
	}
}

func TestValidateRemotePathAcceptsNormalPaths(t *testing.T) {
	good := []string{"/", "/home/user", "/home/user/file.txt", "/a/b/c", ""}
	for _, p := range good {
		if _, err := ValidateRemotePath(p); err != nil {
			t.Errorf("ValidateRemotePath(%q) should have succeeded, got %v", p, err)
		}
	}
}

func TestValidateRemotePathReturnsNormalizedForm(t *testing.T) {
	got, err := ValidateRemotePath("/a/./b//c/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/a/b/c" {
		t.Fatalf("got %q, want /a/b/c", got)
	}
}
