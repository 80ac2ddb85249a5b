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

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/dzip"
	"github.com/nguyengg/dzip/digest"
	"github.com/nguyengg/dzip/zip/scan"
)

// ErrNotReproducible is returned if rebuilding an archive from its directory produces different bytes.
var ErrNotReproducible = errors.New("archive is not reproducible")

type Verify struct {
	ArchiveFlags

	Reproducible flags.Filename `long:"reproducible" description:"also rebuild the archive from this directory using the same flags as create and compare digests"`
	Args         struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the zip archives to be verified" required:"yes"`
	} `positional-args:"yes"`

	logger *log.Logger
}

func (c *Verify) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	if c.Reproducible != "" && len(c.Args.Files) > 1 {
		return fmt.Errorf("--reproducible can only be used with a single archive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		c.logger = newLogger(i, n, file)

		err := c.verify(ctx, string(file))
		if err == nil && c.Reproducible != "" {
			err = c.reproduce(ctx, string(file), string(c.Reproducible))
		}
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf("verify error: %v", err)
	}

	log.Printf("successfully verified %d/%d archives", success, n)
	if success != n {
		return fmt.Errorf("%d/%d archives failed verification", n-success, n)
	}
	return nil
}

// verify decompresses every entry of the named archive and checks its CRC-32 and size.
func (c *Verify) verify(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file error: %w", err)
	}

	_, headers, err := scan.CentralDirectory(f, fi.Size())
	if err != nil {
		return fmt.Errorf("read central directory error: %w", err)
	}

	var count int64
	for fh, err := range headers {
		if err != nil {
			return fmt.Errorf("read central directory error: %w", err)
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if err = scan.Verify(f, fh); err != nil {
			return err
		}

		count++
	}

	c.logger.Printf("verified %s entries", humanize.Comma(count))
	return nil
}

// reproduce archives dir again to a temporary file and compares its digest to that of the named archive.
func (c *Verify) reproduce(ctx context.Context, name, dir string) error {
	want, err := digest.File(name)
	if err != nil {
		return fmt.Errorf("compute digest error: %w", err)
	}

	entries, err := c.entries(ctx, dir)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "dzip-verify-*")
	if err != nil {
		return fmt.Errorf("create temporary directory error: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			c.logger.Printf(`clean up "%s" error: %v`, tmp, err)
		}
	}()

	rebuilt := filepath.Join(tmp, filepath.Base(name))
	if _, err = dzip.Archive(ctx, entries, rebuilt, c.dzipOptions); err != nil {
		return fmt.Errorf("rebuild archive error: %w", err)
	}

	got, err := digest.File(rebuilt)
	if err != nil {
		return fmt.Errorf("compute digest error: %w", err)
	}

	if got.SRI != want.SRI {
		return fmt.Errorf("%w: rebuilt %s, expected %s", ErrNotReproducible, got.SRI, want.SRI)
	}

	c.logger.Printf("reproducible: %s", got.SRI)
	return nil
}
