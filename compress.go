package dzip

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/nguyengg/dzip/internal/executor"
	"github.com/nguyengg/dzip/internal/record"
)

// compressor turns file entries into payloads without touching the output.
//
// A compressor is safe for concurrent use; each call to compress works on its own file.
type compressor struct {
	level   int
	writers sync.Pool

	readNanos, compressNanos atomic.Int64
}

func newCompressor(level int) (*compressor, error) {
	// fail fast on an invalid level instead of inside every task.
	if _, err := flate.NewWriter(io.Discard, level); err != nil {
		return nil, err
	}

	return &compressor{level: level}, nil
}

// compressAll runs compress for every file on a bounded pool and blocks until the pool drains.
//
// Results are stored on each file; the order in which tasks complete is irrelevant.
func (c *compressor) compressAll(ctx context.Context, files []*file, concurrency int, progress *poller) error {
	pool := executor.New(ctx, concurrency)

	progress.start(pool, len(files))
	defer progress.stop()

	for _, f := range files {
		pool.Execute(func(ctx context.Context) error {
			return c.compress(f)
		})
	}

	return pool.Wait()
}

// compress reads, checksums, and deflates a single file, then encodes its header and descriptor.
func (c *compressor) compress(f *file) error {
	start := time.Now()
	data, err := os.ReadFile(f.AbsolutePath)
	c.readNanos.Add(int64(time.Since(start)))
	if err != nil {
		return &Error{Phase: PhaseCompress, Path: f.RelativePath, Err: fmt.Errorf("read file error: %w", err)}
	}

	start = time.Now()
	compressed, checksum, err := c.deflate(data)
	c.compressNanos.Add(int64(time.Since(start)))
	if err != nil {
		return &Error{Phase: PhaseCompress, Path: f.RelativePath, Err: fmt.Errorf("deflate error: %w", err)}
	}

	f.checksum, f.hasChecksum = checksum, true
	f.uncompressedSize = uint64(len(data))
	f.compressedSize = uint64(len(compressed))

	footer, err := dataDescriptor(f)
	if err != nil {
		return &Error{Phase: PhaseCompress, Path: f.RelativePath, Err: err}
	}

	f.payload = &payload{
		header: record.LocalFileHeader(f.RelativePath),
		data:   compressed,
		footer: footer,
	}

	return nil
}

// deflate returns the raw deflate stream of data along with the CRC-32 of the uncompressed bytes.
func (c *compressor) deflate(data []byte) ([]byte, uint32, error) {
	var (
		buf  bytes.Buffer
		hash = crc32.NewIEEE()
		fw   *flate.Writer
		err  error
	)

	if v := c.writers.Get(); v != nil {
		fw = v.(*flate.Writer)
		fw.Reset(&buf)
	} else if fw, err = flate.NewWriter(&buf, c.level); err != nil {
		return nil, 0, err
	}

	if _, err = io.MultiWriter(fw, hash).Write(data); err != nil {
		return nil, 0, err
	}
	if err = fw.Close(); err != nil {
		return nil, 0, err
	}

	c.writers.Put(fw)
	return buf.Bytes(), hash.Sum32(), nil
}

// dataDescriptor encodes the trailing descriptor of a compressed file.
func dataDescriptor(f *file) ([]byte, error) {
	if !f.hasChecksum && f.Size > 0 {
		return nil, ErrMissingChecksum
	}
	if f.compressedSize > record.Uint32Max || f.uncompressedSize > record.Uint32Max {
		return nil, fmt.Errorf("%w: entry larger than 4 GiB", ErrSizeOverflow)
	}

	return record.DataDescriptor(f.checksum, uint32(f.compressedSize), uint32(f.uncompressedSize)), nil
}

func (c *compressor) readTime() time.Duration {
	return time.Duration(c.readNanos.Load())
}

func (c *compressor) compressTime() time.Duration {
	return time.Duration(c.compressNanos.Load())
}
