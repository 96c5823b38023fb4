// Package slug derives the comparison keys used to keep category names unique.
package slug

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Key folds case (Unicode-aware, so "ĂN UỐNG" and "ăn uống" collide) and
// collapses runs of whitespace. Two names with the same key are duplicates.
func Key(name string) string {
	return strings.Join(strings.Fields(folder.String(name)), " ")
}

// Same reports whether a and b name the same thing.
func Same(a, b string) bool { return Key(a) == Key(b) }
