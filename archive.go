package dzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/nguyengg/dzip/internal/executor"
)

// Options customises Archive and ArchiveTo.
type Options struct {
	// OnProgress is called periodically while files are being compressed.
	//
	// remaining is the number of file entries whose compression has not yet completed. The callback is advisory and
	// is never invoked after Archive returns.
	OnProgress func(remaining, total int)

	// ProgressInterval is the period between OnProgress calls.
	//
	// Default to 1 second.
	ProgressInterval time.Duration

	// Concurrency is the maximum number of files compressed at the same time.
	//
	// Default to twice the number of logical CPUs.
	Concurrency int

	// Level is the deflate level passed to [flate.NewWriter].
	//
	// Default to [flate.DefaultCompression]. The same level and the same inputs always produce the same bytes.
	Level int

	// Logger receives phase-level diagnostic messages.
	//
	// Default to a logger that discards everything.
	Logger *log.Logger
}

func newOptions(optFns []func(*Options)) *Options {
	opts := &Options{
		ProgressInterval: time.Second,
		Concurrency:      executor.DefaultConcurrency(),
		Level:            flate.DefaultCompression,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	return opts
}

// Archive writes a deterministic ZIP archive of the given entries to the file named dst.
//
// The destination is created (or truncated) only once the first byte is ready to be written, so validation errors
// leave the file system untouched. The file is always closed before Archive returns. On error, the partially written
// file is left in place for the caller to inspect or remove. A failure to create the destination is always reported
// with PhaseAssemble.
//
// Entries need not be sorted; Archive sorts a copy by RelativePath. Directory entries are skipped.
func Archive(ctx context.Context, entries []Entry, dst string, optFns ...func(*Options)) (stats Stats, err error) {
	f := &lazyFile{name: dst}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &Error{Phase: PhaseDirectory, Err: fmt.Errorf("close file error: %w", cerr)}
		}
	}()

	return ArchiveTo(ctx, entries, f, optFns...)
}

// ArchiveTo is a variant of Archive that writes to the given writer.
//
// dst is not closed. Bytes are written strictly sequentially so dst need not support seeking.
func ArchiveTo(ctx context.Context, entries []Entry, dst io.Writer, optFns ...func(*Options)) (stats Stats, err error) {
	opts := newOptions(optFns)
	logger := opts.Logger

	if err = validate(entries); err != nil {
		return stats, err
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)

	files := make([]*file, 0, len(sorted))
	for _, e := range sorted {
		if !e.IsFile {
			stats.Directories++
			continue
		}

		files = append(files, &file{Entry: e})
	}

	c, err := newCompressor(opts.Level)
	if err != nil {
		return stats, &Error{Phase: PhaseCompress, Err: fmt.Errorf("create deflater error: %w", err)}
	}

	logger.Printf("compressing %d files with concurrency %d", len(files), opts.Concurrency)
	if err = c.compressAll(ctx, files, opts.Concurrency, newPoller(opts.OnProgress, opts.ProgressInterval)); err != nil {
		return stats, asError(PhaseCompress, err)
	}
	stats.ReadTime, stats.CompressTime = c.readTime(), c.compressTime()
	logger.Printf("compressed %d files; read %s, compress %s", len(files), stats.ReadTime, stats.CompressTime)

	// the pool has fully drained; cancellation from here on is checked between the two write phases only.
	if err = ctx.Err(); err != nil {
		return stats, &Error{Phase: PhaseAssemble, Err: err}
	}

	start := time.Now()
	s := newArchiveState(dst)
	if err = s.writeEntries(files); err != nil {
		return stats, err
	}
	if err = s.writeDirectory(files); err != nil {
		return stats, err
	}
	stats.WriteTime = time.Since(start)

	stats.Files = len(files)
	stats.ArchiveBytes = int64(s.cursor)
	for _, f := range files {
		stats.UncompressedBytes += int64(f.uncompressedSize)
		stats.CompressedBytes += int64(f.compressedSize)
	}

	if s.fileCount > zip64Threshold {
		logger.Printf("wrote zip64 end records for %d files", s.fileCount)
	}
	logger.Printf("wrote %d bytes in %s", s.cursor, stats.WriteTime)

	return stats, nil
}

// asError makes sure err is an *Error, attributing it to the given phase if it is not one already.
func asError(phase Phase, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return &Error{Phase: phase, Err: err}
}

// lazyFile creates the named file on first Write.
type lazyFile struct {
	name string
	f    *os.File
}

func (l *lazyFile) Write(p []byte) (int, error) {
	if l.f == nil {
		f, err := os.Create(l.name)
		if err != nil {
			// buffering may delay the first write until the directory is flushed, but opening is always assembly.
			return 0, &Error{Phase: PhaseAssemble, Err: fmt.Errorf("create file error: %w", err)}
		}

		l.f = f
	}

	return l.f.Write(p)
}

// Close closes the underlying file if it was ever opened.
//
// Close is idempotent.
func (l *lazyFile) Close() error {
	if l.f == nil {
		return nil
	}

	err := l.f.Close()
	l.f = nil
	return err
}
