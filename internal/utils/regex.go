package utils

import (
	"path/filepath"
	"strings"
)

// RemoveInvalidChars strips characters that are not allowed in file names.
func RemoveInvalidChars(value string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, value)
}

// SafeFileName reduces a remote path to a bare, valid file name.
func SafeFileName(path string) string {
	name := RemoveInvalidChars(filepath.Base(filepath.ToSlash(strings.TrimLeft(path, "/"))))
	if name == "" || name == "." {
		return "download"
	}
	return name
}
