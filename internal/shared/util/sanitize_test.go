package util

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "certificate.pdf", want: "certificate.pdf"},
		{in: "  policies/GL 2026.pdf ", want: "policies_GL 2026.pdf"},
		{in: `C:\scans\license.png`, want: "C:_scans_license.png"},
		{in: "wc\x00\tpolicy.pdf", want: "wcpolicy.pdf"},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if err != nil {
			t.Fatalf("SanitizeFileName(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileNameRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "../etc/passwd", "a/../b.pdf", "\x01\x02", "."} {
		if _, err := SanitizeFileName(in); !errors.Is(err, ErrInvalidFileName) {
			t.Fatalf("SanitizeFileName(%q): expected ErrInvalidFileName, got %v", in, err)
		}
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("é", 150) + ".pdf"
	got, err := SanitizeFileName(long)
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if len(got) > MaxFileNameLen {
		t.Fatalf("expected at most %d bytes, got %d", MaxFileNameLen, len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected extension kept, got %q", got)
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '\uFFFD') {
		t.Fatalf("expected valid utf-8 prefix, got %q", got)
	}
}
