// Package config locates and applies the ".dzip" configuration file that provides CLI defaults.
//
// The file is in ini format. Each section is named after a command and each key after one of its long flags:
//
//	[create]
//	level = 9
//	exclude = *.log
//	bucket = my-bucket
//	prefix = archives/
//
// Values given on the command line take precedence over the file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// FileName is the name of the configuration file.
const FileName = ".dzip"

// Find traverses the directory hierarchy upwards from dir to find the first ".dzip" file.
//
// Returns an empty string without error if none is found.
func Find(ctx context.Context, dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		if err = ctx.Err(); err != nil {
			return "", err
		}

		path := filepath.Join(cur, FileName)
		switch fi, err := os.Stat(path); {
		case err == nil && !fi.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", nil
		}
		cur = parent
	}
}

// Load finds the configuration file starting from the working directory and applies it to the parser.
//
// Must be called before [flags.Parser.Parse] so that command line values override the file. Returns the path of the
// file that was applied, or an empty string if there was none.
func Load(ctx context.Context, parser *flags.Parser) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	path, err := Find(ctx, wd)
	if err != nil || path == "" {
		return path, err
	}

	return path, Apply(parser, path)
}

// Apply parses the named ini file into the parser's groups and commands.
//
// Unknown sections and keys are ignored so that one file can serve several versions of the CLI.
func Apply(parser *flags.Parser, path string) error {
	opts := parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = opts }()

	// command line values override the defaults set from the file.
	ini := flags.NewIniParser(parser)
	ini.ParseAsDefaults = true
	if err := ini.ParseFile(path); err != nil {
		return fmt.Errorf(`parse config file "%s" error: %w`, path, err)
	}

	return nil
}
