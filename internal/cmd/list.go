package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/dzip/zip/scan"
)

type List struct {
	Args struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the zip archives to be listed" required:"yes"`
	} `positional-args:"yes"`
}

func (c *List) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		logger := newLogger(i, n, file)

		if err := list(string(file), os.Stdout); err != nil {
			logger.Printf("list error: %v", err)
			continue
		}

		success++
	}

	if n > 1 {
		log.Printf("successfully listed %d/%d archives", success, n)
	}
	return nil
}

// list prints one line per central directory entry of the named archive to w, followed by a summary.
func list(name string, w io.Writer) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file error: %w", err)
	}

	end, headers, err := scan.CentralDirectory(f, fi.Size())
	if err != nil {
		return fmt.Errorf("read central directory error: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintf(tw, "offset\tcrc32\tcompressed\tsize\t\tname\n")

	var (
		count                    int64
		compressed, uncompressed uint64
	)
	for fh, err := range headers {
		if err != nil {
			return fmt.Errorf("read central directory error: %w", err)
		}

		count++
		compressed += fh.CompressedSize64
		uncompressed += fh.UncompressedSize64
		_, _ = fmt.Fprintf(tw, "0x%x\t%08x\t%s\t%s\t\t%s\n",
			fh.Offset, fh.CRC32, humanize.IBytes(fh.CompressedSize64), humanize.IBytes(fh.UncompressedSize64), fh.Name)
	}
	if err = tw.Flush(); err != nil {
		return err
	}

	format := "classic"
	if end.Zip64 {
		format = "zip64"
	}

	_, err = fmt.Fprintf(w, "%s entries (%s end record), %s -> %s\n",
		humanize.Comma(count), format, humanize.IBytes(uncompressed), humanize.IBytes(compressed))
	return err
}
