package core

import (
	"html"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// SameSection compares two section names ignoring case and surrounding whitespace.
// Empty sections never match.
func SameSection(a, b string) bool {
	a, b = CleanString(a), CleanString(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// Sanitize strips any markup from user supplied free text.
// Entities escaped by the policy are decoded back, the result is served as JSON not HTML.
func Sanitize(s string) string {
	return CleanString(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// Getwd finds the project root: the closest parent directory holding go.mod.
// go test runs from the package directory, so the working directory alone is not enough.
// Falls back to the working directory when the binary runs outside the source tree.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
