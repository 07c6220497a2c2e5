package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameLen bounds stored document names in bytes.
const MaxFileNameLen = 200

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes a client-supplied name safe to embed in a storage
// key. Path separators become underscores and control characters are dropped.
// Names over MaxFileNameLen are cut, keeping the extension.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	return truncateKeepExt(s, MaxFileNameLen), nil
}

func truncateKeepExt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= limit/2 {
		ext = ""
	}
	base := s[:limit-len(ext)]
	for !utf8.ValidString(base) {
		base = base[:len(base)-1]
	}
	return base + ext
}
