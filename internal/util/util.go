// Package util provides small helpers shared by the recorder and the CLI.
package util

import (
	"strings"
	"time"
	"unicode"
)

// SafeName lowercases s and replaces every run of characters that are not
// letters or digits with a single underscore.
func SafeName(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ExportFileName builds "<utc start>_<instance>_<track>_<id>" without an
// extension. Empty parts are skipped.
func ExportFileName(start time.Time, instanceID, track, id string) string {
	parts := []string{start.UTC().Format("20060102T150405Z")}
	for _, p := range []string{SafeName(instanceID), SafeName(track), id} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}
