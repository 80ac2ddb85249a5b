package dzip

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats summarises a successful Archive call.
type Stats struct {
	// Files is the number of file entries written.
	Files int
	// Directories is the number of directory entries that were skipped.
	Directories int

	// UncompressedBytes is the sum of the uncompressed sizes of all files.
	UncompressedBytes int64
	// CompressedBytes is the sum of the deflated sizes of all files.
	CompressedBytes int64
	// ArchiveBytes is the total size of the archive including every header and end record.
	ArchiveBytes int64

	// ReadTime and CompressTime are cumulative across all workers so they can exceed wall time.
	ReadTime     time.Duration
	CompressTime time.Duration
	// WriteTime is the wall time spent assembling the archive and writing the central directory.
	WriteTime time.Duration
}

// Ratio returns ArchiveBytes / UncompressedBytes, or 0 if there were no bytes to compress.
func (s Stats) Ratio() float64 {
	if s.UncompressedBytes == 0 {
		return 0
	}

	return float64(s.ArchiveBytes) / float64(s.UncompressedBytes)
}

func (s Stats) String() string {
	return fmt.Sprintf("%s files, %s directories skipped, %s -> %s (%.2f%%), read %s, compress %s, write %s",
		humanize.Comma(int64(s.Files)),
		humanize.Comma(int64(s.Directories)),
		humanize.IBytes(uint64(s.UncompressedBytes)),
		humanize.IBytes(uint64(s.ArchiveBytes)),
		100*s.Ratio(),
		s.ReadTime.Round(time.Millisecond),
		s.CompressTime.Round(time.Millisecond),
		s.WriteTime.Round(time.Millisecond))
}
