// Package naming holds the rules shared by file and folder names.
package naming

import (
	"strings"
	"unicode/utf8"

	"cloudsync/internal/apperr"
)

const MaxNameLength = 255

// Clean trims name and rejects values that cannot be a single path element.
func Clean(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperr.Validation("name must not be empty")
	case name == "." || name == "..":
		return "", apperr.Validation("name must not be '.' or '..'")
	case strings.ContainsAny(name, "/\\"):
		return "", apperr.Validation("name must not contain path separators")
	case strings.ContainsRune(name, 0):
		return "", apperr.Validation("name must not contain NUL characters")
	case !utf8.ValidString(name):
		return "", apperr.Validation("name must be valid UTF-8")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", apperr.Validation("name is too long")
	}
	return name, nil
}

// CleanUploadName strips any client-side directory part from an uploaded file name
// before validating it. Browsers on Windows may still send "C:\\fakepath\\a.txt".
func CleanUploadName(name string) (string, error) {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	return Clean(name)
}
