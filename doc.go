// Package dzip writes reproducible ZIP archives.
//
// Given the same set of files, Archive emits byte-identical output across runs and across machines. Entries are
// ordered by a byte-wise comparison of their relative paths, every entry carries the same synthetic modification
// time, and no platform metadata such as permissions or ownership is recorded. Compression runs concurrently but
// the archive is assembled sequentially in the fixed sort order, so the order in which compression finishes never
// leaks into the output.
//
// The entire compressed content of the archive is held in memory until the pool drains and the archive is written
// out; memory use therefore scales with the compressed size of the archive.
//
// Archives with more than 65536 files end with zip64 end records.
package dzip
