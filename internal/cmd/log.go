package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// prefix creates a consistent prefix for all file-based commands to use.
//
// i and n are the zero-based ordinal and expected count.
func prefix(i, n int, name flags.Filename) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, truncateRight(filepath.Base(string(name)), 30, "..."))
}

// newLogger returns a stderr logger using prefix.
func newLogger(i, n int, name flags.Filename) *log.Logger {
	return log.New(os.Stderr, prefix(i, n, name), 0)
}

// truncateRight keeps the first n runes of text and appends suffix only if truncation happens.
func truncateRight(text string, n int, suffix string) string {
	rs := []rune(text)
	if len(rs) <= n {
		return text
	}

	return string(rs[:max(n, 0)]) + suffix
}
