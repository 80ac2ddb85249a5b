package dzip

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mholt/archives"
	"github.com/nguyengg/dzip/zip/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var simpleFiles = map[string]string{
	"index.js":           "module.exports = require('./src/blah');\n",
	"src/blah.js":        "module.exports = function blah() { return require('./deeper/more'); };\n",
	"src/deeper/more.js": strings.Repeat("console.log('more');\n", 50),
}

// writeTree writes files under dir and returns their entries, plus one entry per parent directory, in map order.
func writeTree(t *testing.T, dir string, files map[string]string) []Entry {
	t.Helper()

	var entries []Entry
	dirs := make(map[string]bool)
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		entries = append(entries, Entry{RelativePath: name, AbsolutePath: path, IsFile: true, Size: int64(len(content))})

		for d := filepath.ToSlash(filepath.Dir(name)); d != "." && !dirs[d]; d = filepath.ToSlash(filepath.Dir(d)) {
			dirs[d] = true
			entries = append(entries, Entry{RelativePath: d, AbsolutePath: filepath.Join(dir, d), IsDir: true})
		}
	}

	return entries
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestArchive_Deterministic(t *testing.T) {
	entries := writeTree(t, t.TempDir(), simpleFiles)
	out := t.TempDir()

	var hashes []string
	for i, concurrency := range []int{1, 2, 16} {
		// shuffle the input order as well as the degree of parallelism.
		shuffled := slices.Clone(entries)
		if i%2 == 1 {
			slices.Reverse(shuffled)
		}

		dst := filepath.Join(out, fmt.Sprintf("%d.zip", i))
		_, err := Archive(context.Background(), shuffled, dst, func(opts *Options) {
			opts.Concurrency = concurrency
		})
		require.NoErrorf(t, err, "Archive() error = %v", err)

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		hashes = append(hashes, md5Hex(data))
	}

	assert.Equal(t, hashes[0], hashes[1])
	assert.Equal(t, hashes[0], hashes[2])
}

func TestArchive_Layout(t *testing.T) {
	entries := writeTree(t, t.TempDir(), simpleFiles)
	dst := filepath.Join(t.TempDir(), "test.zip")

	stats, err := Archive(context.Background(), entries, dst)
	require.NoErrorf(t, err, "Archive() error = %v", err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	src := bytes.NewReader(data)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Directories)
	assert.Equal(t, int64(len(data)), stats.ArchiveBytes)

	end, headers, err := scan.CentralDirectory(src, int64(len(data)))
	require.NoErrorf(t, err, "CentralDirectory() error = %v", err)
	assert.False(t, end.Zip64)
	assert.Equal(t, uint64(3), end.Records)
	assert.Equal(t, int64(len(data)-22), end.EOCDOffset)

	var (
		names  []string
		cursor int64
	)
	for fh, err := range headers {
		require.NoError(t, err)
		names = append(names, fh.Name)

		assert.Equal(t, uint16(20), fh.CreatorVersion)
		assert.Equal(t, uint16(20), fh.ReaderVersion)
		assert.Equal(t, uint16(0x0808), fh.Flags)
		assert.Equal(t, uint16(8), fh.Method)
		assert.Equal(t, uint16(0x6020), fh.ModifiedTime)
		assert.Equal(t, uint16(0x0021), fh.ModifiedDate)
		assert.Equal(t, time.Date(1980, time.January, 1, 12, 1, 0, 0, time.UTC), fh.Modified)
		assert.Empty(t, fh.Extra)
		assert.Empty(t, fh.Comment)

		// every entry starts exactly where the previous one ended.
		assert.Equal(t, cursor, fh.Offset)

		lfh, err := scan.ReadLocalFileHeader(src, fh.Offset)
		require.NoErrorf(t, err, "ReadLocalFileHeader(%d) error = %v", fh.Offset, err)
		assert.Equal(t, fh.Name, lfh.Name)
		assert.Zero(t, lfh.CRC32)
		assert.Zero(t, lfh.CompressedSize64)
		assert.Zero(t, lfh.UncompressedSize64)

		footerOffset := lfh.DataOffset + int64(fh.CompressedSize64)
		dd, err := scan.ReadDataDescriptor(src, footerOffset)
		require.NoErrorf(t, err, "ReadDataDescriptor(%d) error = %v", footerOffset, err)
		assert.Equal(t, scan.DataDescriptor{
			CRC32:            fh.CRC32,
			CompressedSize:   fh.CompressedSize,
			UncompressedSize: fh.UncompressedSize,
		}, dd)

		assert.NoErrorf(t, scan.Verify(src, fh), "Verify(%s) error = %v", fh.Name, err)

		cursor = footerOffset + 16
	}

	assert.Equal(t, []string{"index.js", "src/blah.js", "src/deeper/more.js"}, names)
	assert.Equal(t, uint64(cursor), end.Offset, "central directory must follow the last entry")
}

func TestArchive_RoundTrip(t *testing.T) {
	files := map[string]string{
		"empty.txt":       "",
		"a.txt":           "hello, world!",
		"B.txt":           "upper case sorts before lower case",
		"dir/nested.json": `{"key":"value"}`,
		"dir/é.txt":       "non-ascii name",
		"big.bin":         strings.Repeat("0123456789abcdef", 64*1024),
	}
	entries := writeTree(t, t.TempDir(), files)

	buf := &bytes.Buffer{}
	stats, err := ArchiveTo(context.Background(), entries, buf)
	require.NoErrorf(t, err, "ArchiveTo() error = %v", err)
	assert.Equal(t, len(files), stats.Files)
	assert.Equal(t, int64(buf.Len()), stats.ArchiveBytes)

	t.Run("archive/zip", func(t *testing.T) {
		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoErrorf(t, err, "zip.NewReader() error = %v", err)

		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)

			r, err := f.Open()
			require.NoErrorf(t, err, "Open(%s) error = %v", f.Name, err)
			got, err := io.ReadAll(r)
			assert.NoErrorf(t, err, "ReadAll(%s) error = %v", f.Name, err)
			_ = r.Close()

			assert.Equal(t, files[f.Name], string(got))
		}

		assert.Equal(t, []string{"B.txt", "a.txt", "big.bin", "dir/nested.json", "dir/é.txt", "empty.txt"}, names)
	})

	t.Run("mholt/archives", func(t *testing.T) {
		got := make(map[string]string)
		err := archives.Zip{}.Extract(context.Background(), bytes.NewReader(buf.Bytes()), func(ctx context.Context, info archives.FileInfo) error {
			f, err := info.Open()
			if err != nil {
				return err
			}
			defer f.Close()

			data, err := io.ReadAll(f)
			if err != nil {
				return err
			}

			got[info.NameInArchive] = string(data)
			return nil
		})
		require.NoErrorf(t, err, "Extract() error = %v", err)
		assert.Equal(t, files, got)
	})
}

func TestArchive_EmptyFile(t *testing.T) {
	entries := writeTree(t, t.TempDir(), map[string]string{"empty.txt": ""})

	buf := &bytes.Buffer{}
	stats, err := ArchiveTo(context.Background(), entries, buf)
	require.NoErrorf(t, err, "ArchiveTo() error = %v", err)
	assert.Equal(t, int64(0), stats.UncompressedBytes)

	_, headers, err := scan.CentralDirectory(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	for fh, err := range headers {
		require.NoError(t, err)
		assert.Equal(t, "empty.txt", fh.Name)
		assert.Zero(t, fh.CRC32)
		assert.Zero(t, fh.UncompressedSize64)
		assert.Positive(t, fh.CompressedSize64, "an empty deflate stream still has a final block")
	}
}

func TestArchive_NoFiles(t *testing.T) {
	buf := &bytes.Buffer{}
	stats, err := ArchiveTo(context.Background(), []Entry{{RelativePath: "dir", IsDir: true}}, buf)
	require.NoErrorf(t, err, "ArchiveTo() error = %v", err)
	assert.Equal(t, 0, stats.Files)
	assert.Equal(t, 1, stats.Directories)
	assert.Equal(t, 22, buf.Len(), "only the end of central directory record is written")

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestArchive_Errors(t *testing.T) {
	dir := t.TempDir()
	entries := writeTree(t, dir, map[string]string{"a.txt": "a"})

	tests := []struct {
		name    string
		entries []Entry
		phase   Phase
		path    string
		wantErr error
	}{
		{
			name:    "empty relative path",
			entries: []Entry{{AbsolutePath: entries[0].AbsolutePath, IsFile: true}},
			phase:   PhaseEnumerate,
			path:    entries[0].AbsolutePath,
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "relative path not valid UTF-8",
			entries: []Entry{{RelativePath: "a\xff.txt", AbsolutePath: entries[0].AbsolutePath, IsFile: true, Size: 1}},
			phase:   PhaseEnumerate,
			path:    "a\xff.txt",
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "both file and directory",
			entries: []Entry{{RelativePath: "a.txt", AbsolutePath: entries[0].AbsolutePath, IsFile: true, IsDir: true}},
			phase:   PhaseEnumerate,
			path:    "a.txt",
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "negative size",
			entries: []Entry{{RelativePath: "a.txt", AbsolutePath: entries[0].AbsolutePath, IsFile: true, Size: -1}},
			phase:   PhaseEnumerate,
			path:    "a.txt",
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "no absolute path",
			entries: []Entry{{RelativePath: "a.txt", IsFile: true}},
			phase:   PhaseEnumerate,
			path:    "a.txt",
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "duplicate",
			entries: []Entry{entries[0], entries[0]},
			phase:   PhaseEnumerate,
			path:    "a.txt",
			wantErr: ErrDuplicatePath,
		},
		{
			name:    "missing file",
			entries: []Entry{entries[0], {RelativePath: "b.txt", AbsolutePath: filepath.Join(dir, "b.txt"), IsFile: true, Size: 1}},
			phase:   PhaseCompress,
			path:    "b.txt",
			wantErr: fs.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "test.zip")

			_, err := Archive(context.Background(), tt.entries, dst)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.phase, e.Phase)
			assert.Equal(t, tt.path, e.Path)

			// nothing was ever written so the destination was never created.
			_, err = os.Stat(dst)
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})
	}
}

func TestArchive_Cancelled(t *testing.T) {
	entries := writeTree(t, t.TempDir(), simpleFiles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ArchiveTo(ctx, entries, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)

	var e *Error
	assert.ErrorAs(t, err, &e)
}

func TestArchive_InvalidLevel(t *testing.T) {
	entries := writeTree(t, t.TempDir(), simpleFiles)

	_, err := ArchiveTo(context.Background(), entries, io.Discard, func(opts *Options) {
		opts.Level = 42
	})

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, PhaseCompress, e.Phase)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestArchiveTo_WriteError(t *testing.T) {
	// enough data to overflow the write buffer before the central directory is reached.
	entries := writeTree(t, t.TempDir(), map[string]string{
		"a.bin": strings.Repeat("a", 1<<20),
		"b.bin": strings.Repeat("b", 1<<20),
	})

	_, err := ArchiveTo(context.Background(), entries, failingWriter{}, func(opts *Options) {
		opts.Level = 0
	})

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, PhaseAssemble, e.Phase)
	assert.ErrorContains(t, err, "disk full")
}

func TestArchive_CreateError(t *testing.T) {
	entries := writeTree(t, t.TempDir(), simpleFiles)

	// small enough that the first write to the destination only happens when the directory is flushed.
	dst := filepath.Join(t.TempDir(), "missing", "test.zip")
	_, err := Archive(context.Background(), entries, dst)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, PhaseAssemble, e.Phase)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "assembly error: create file error")
}

func TestArchive_Progress(t *testing.T) {
	files := make(map[string]string)
	for i := range 200 {
		files[fmt.Sprintf("%03d.txt", i)] = strings.Repeat(fmt.Sprintf("line %d\n", i), 1000)
	}
	entries := writeTree(t, t.TempDir(), files)

	var (
		mu    sync.Mutex
		calls int
	)
	_, err := ArchiveTo(context.Background(), entries, io.Discard, func(opts *Options) {
		opts.Concurrency = 1
		opts.ProgressInterval = time.Millisecond
		opts.OnProgress = func(remaining, total int) {
			mu.Lock()
			defer mu.Unlock()

			calls++
			assert.Equal(t, 200, total)
			assert.GreaterOrEqual(t, remaining, 0)
			assert.LessOrEqual(t, remaining, total)
		}
	})
	require.NoErrorf(t, err, "ArchiveTo() error = %v", err)

	mu.Lock()
	n := calls
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, calls, "OnProgress must not be called after ArchiveTo returns")
}

func TestArchive_Zip64(t *testing.T) {
	if testing.Short() {
		t.Skip("writes 70,000 files")
	}

	dir := t.TempDir()
	entries := make([]Entry, 0, 70000)
	for i := range 70000 {
		name := fmt.Sprintf("%05d.txt", i)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		entries = append(entries, Entry{RelativePath: name, AbsolutePath: path, IsFile: true, Size: int64(len(name))})
	}

	buf := &bytes.Buffer{}
	stats, err := ArchiveTo(context.Background(), entries, buf)
	require.NoErrorf(t, err, "ArchiveTo() error = %v", err)
	assert.Equal(t, 70000, stats.Files)

	end, err := scan.FindEnd(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoErrorf(t, err, "FindEnd() error = %v", err)
	assert.True(t, end.Zip64)
	assert.Equal(t, uint64(70000), end.Records)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoErrorf(t, err, "zip.NewReader() error = %v", err)
	assert.Len(t, zr.File, 70000)
}
