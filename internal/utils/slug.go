package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a title and collapses everything non-alphanumeric
// into single dashes.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = nonAlnum.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// UniqueSlug appends a timestamp when the base slug is already taken.
func UniqueSlug(slug string) string {
	return fmt.Sprintf("%s-%d", slug, time.Now().Unix())
}
