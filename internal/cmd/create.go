package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/dzip"
	"github.com/nguyengg/dzip/digest"
	"github.com/nguyengg/dzip/internal/config"
	"github.com/nguyengg/dzip/internal/publish"
	"github.com/nguyengg/dzip/walk"
)

// ArchiveFlags are the flags that decide which bytes an archive contains.
//
// Create and Verify share them so that `verify --reproducible` rebuilds the archive exactly the way create would.
type ArchiveFlags struct {
	Includes          []string       `short:"i" long:"include" description:"only include paths matching these patterns; default to everything"`
	Excludes          []string       `short:"x" long:"exclude" description:"exclude paths matching these patterns in addition to the default excludes"`
	NoDefaultExcludes bool           `long:"no-default-excludes" description:"do not exclude version control directories and editor droppings"`
	Base              flags.Filename `long:"base" description:"directory that entry names are relative to; default to the archived directory"`
	Level             int            `short:"l" long:"level" description:"deflate level from 0 (store) to 9 (best); -1 uses the default" default:"-1"`
	Concurrency       int            `short:"P" long:"concurrency" description:"number of files compressed in parallel; default to twice the number of CPUs"`
}

func (o *ArchiveFlags) walkOptions(opts *walk.Options) {
	if len(o.Includes) != 0 {
		opts.Includes = o.Includes
	}

	if o.NoDefaultExcludes {
		opts.Excludes = append([]string{}, o.Excludes...)
	} else {
		opts.Excludes = append(append([]string{}, walk.DefaultExcludes...), o.Excludes...)
	}

	opts.Base = string(o.Base)
}

func (o *ArchiveFlags) dzipOptions(opts *dzip.Options) {
	opts.Level = o.Level
	if o.Concurrency > 0 {
		opts.Concurrency = o.Concurrency
	}
}

// entries walks dir and returns what belongs in the archive.
func (o *ArchiveFlags) entries(ctx context.Context, dir string) ([]dzip.Entry, error) {
	entries, err := walk.Dir(ctx, dir, o.walkOptions)
	if err != nil {
		return nil, &dzip.Error{Phase: dzip.PhaseEnumerate, Err: err}
	}

	return entries, nil
}

type Create struct {
	ArchiveFlags

	Output        flags.Filename `short:"o" long:"output" description:"the archive to create; default to <dir>.zip in the working directory with a numeric suffix if that already exists"`
	Bucket        string         `long:"bucket" description:"if given, upload the archive to this S3 bucket under a content-addressed key"`
	Prefix        string         `long:"prefix" description:"prefix of the S3 key"`
	Profile       string         `long:"profile" description:"AWS shared config profile used for uploading"`
	NoProgressBar bool           `long:"no-progress-bar" description:"log progress periodically instead of rendering a progress bar"`
	Args          struct {
		Dirs []flags.Filename `positional-arg-name:"dir" description:"the directories to be archived" required:"yes"`
	} `positional-args:"yes"`

	logger *log.Logger
}

func (c *Create) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	if c.Output != "" && len(c.Args.Dirs) > 1 {
		return fmt.Errorf("--output can only be used with a single directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	var client publish.Client
	if c.Bucket != "" {
		var err error
		if client, err = config.NewS3Client(ctx, c.Profile); err != nil {
			return fmt.Errorf("create s3 client error: %w", err)
		}
	}

	success := 0
	n := len(c.Args.Dirs)
	for i, dir := range c.Args.Dirs {
		c.logger = newLogger(i, n, dir)

		name, err := c.create(ctx, string(dir))
		if err == nil && client != nil {
			_, err = publish.Publish(ctx, client, name, c.Bucket, func(opts *publish.Options) {
				opts.Prefix = c.Prefix
				opts.Logger = c.logger
			})
		}
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf("create error: %v", err)
	}

	log.Printf("successfully created %d/%d archives", success, n)
	return nil
}

// create archives dir and returns the name of the new archive.
//
// A partially written archive is removed on failure unless its path existed before the call.
func (c *Create) create(ctx context.Context, dir string) (name string, err error) {
	entries, err := c.entries(ctx, dir)
	if err != nil {
		return "", err
	}

	files := 0
	for _, e := range entries {
		if e.IsFile {
			files++
		}
	}

	var progress *progressReporter
	if c.NoProgressBar {
		progress = newProgressLogger(c.logger, 5*time.Second)
	} else {
		progress = newProgressBar(files, filepath.Base(dir))
	}

	optFns := []func(*dzip.Options){c.dzipOptions, func(opts *dzip.Options) {
		opts.OnProgress = progress.report
	}}

	var (
		stats   dzip.Stats
		created = true
	)
	if c.Output != "" {
		name = string(c.Output)

		// a path that already exists belongs to the user so it is never removed.
		if _, serr := os.Lstat(name); serr == nil {
			created = false
		}

		stats, err = dzip.Archive(ctx, entries, name, optFns...)
	} else {
		stem := filepath.Base(dir)
		if abs, err := filepath.Abs(dir); err == nil {
			stem = filepath.Base(abs)
		}

		var f *os.File
		if f, err = openExclFile(".", stem, ".zip", 0666); err != nil {
			return "", err
		}
		name = f.Name()

		stats, err = dzip.ArchiveTo(ctx, entries, f, optFns...)
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive error: %w", cerr)
		}
	}
	progress.finish()

	if err != nil {
		if !created {
			return "", err
		}
		if rerr := os.Remove(name); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			c.logger.Printf(`clean up "%s" error: %v`, name, rerr)
		}
		return "", err
	}

	d, err := digest.File(name)
	if err != nil {
		return name, fmt.Errorf("compute digest error: %w", err)
	}

	c.logger.Printf(`created "%s": %s`, name, stats)
	c.logger.Printf(`%s %s`, d.SRI, name)
	return name, nil
}
