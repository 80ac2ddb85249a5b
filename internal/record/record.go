// Package record encodes the fixed-layout records of a ZIP container.
//
// Every record starts from an immutable template array. Encoders copy the template by value and fill in the
// variable fields of the copy, so templates are never mutated and concurrent callers never share a buffer.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format) and APPNOTE.TXT sections 4.3.7 through 4.3.16.
package record

import (
	"encoding/binary"
)

const (
	LocalFileHeaderSig        uint32 = 0x04034b50
	DataDescriptorSig         uint32 = 0x08074b50
	CentralDirectoryHeaderSig uint32 = 0x02014b50
	EndOfCentralDirSig        uint32 = 0x06054b50
	Zip64EndOfCentralDirSig   uint32 = 0x06064b50
	Zip64EndLocatorSig        uint32 = 0x07064b50
)

const (
	LocalFileHeaderLen        = 30
	DataDescriptorLen         = 16
	CentralDirectoryHeaderLen = 46
	EndOfCentralDirLen        = 22
	Zip64EndOfCentralDirLen   = 56
	Zip64EndLocatorLen        = 20
)

const (
	// VersionDeflate is the "version needed to extract" for deflated entries (2.0).
	VersionDeflate uint16 = 20
	// VersionZip64 is the version needed to read the zip64 end records (4.5).
	VersionZip64 uint16 = 45

	// FlagDataDescriptor signals that CRC-32 and sizes follow the data in a data descriptor.
	FlagDataDescriptor uint16 = 0x0008
	// FlagUTF8 signals that the file name is UTF-8 encoded.
	FlagUTF8 uint16 = 0x0800
	// Flags is the general purpose bit flag written on every entry.
	Flags = FlagDataDescriptor | FlagUTF8

	// MethodDeflate is compression method 8.
	MethodDeflate uint16 = 8

	// ModTime is the synthetic MS-DOS modification time 12:01:00.
	ModTime uint16 = 0x6020
	// ModDate is the synthetic MS-DOS modification date 1980-01-01.
	ModDate uint16 = 0x0021

	// Uint16Max is the escape sentinel for 16-bit count fields.
	Uint16Max = 0xffff
	// Uint32Max is the escape sentinel for 32-bit size and offset fields.
	Uint32Max = 0xffffffff
)

var (
	localFileHeaderTemplate [LocalFileHeaderLen]byte
	centralDirTemplate      [CentralDirectoryHeaderLen]byte
)

func init() {
	b := localFileHeaderTemplate[:]
	binary.LittleEndian.PutUint32(b[0:4], LocalFileHeaderSig)
	binary.LittleEndian.PutUint16(b[4:6], VersionDeflate)
	binary.LittleEndian.PutUint16(b[6:8], Flags)
	binary.LittleEndian.PutUint16(b[8:10], MethodDeflate)
	binary.LittleEndian.PutUint16(b[10:12], ModTime)
	binary.LittleEndian.PutUint16(b[12:14], ModDate)
	// crc-32 and both sizes (14:26) stay zero; they live in the data descriptor.

	b = centralDirTemplate[:]
	binary.LittleEndian.PutUint32(b[0:4], CentralDirectoryHeaderSig)
	binary.LittleEndian.PutUint16(b[4:6], VersionDeflate)
	binary.LittleEndian.PutUint16(b[6:8], VersionDeflate)
	binary.LittleEndian.PutUint16(b[8:10], Flags)
	binary.LittleEndian.PutUint16(b[10:12], MethodDeflate)
	binary.LittleEndian.PutUint16(b[12:14], ModTime)
	binary.LittleEndian.PutUint16(b[14:16], ModDate)
}

// LocalFileHeader returns the 30-byte local file header followed by name.
//
// The caller must ensure len(name) fits in 16 bits.
func LocalFileHeader(name string) []byte {
	h := localFileHeaderTemplate
	binary.LittleEndian.PutUint16(h[26:28], uint16(len(name)))

	b := make([]byte, 0, LocalFileHeaderLen+len(name))
	b = append(b, h[:]...)
	return append(b, name...)
}

// DataDescriptor returns the 16-byte streaming data descriptor.
func DataDescriptor(crc32, compressedSize, uncompressedSize uint32) []byte {
	b := make([]byte, DataDescriptorLen)
	binary.LittleEndian.PutUint32(b[0:4], DataDescriptorSig)
	binary.LittleEndian.PutUint32(b[4:8], crc32)
	binary.LittleEndian.PutUint32(b[8:12], compressedSize)
	binary.LittleEndian.PutUint32(b[12:16], uncompressedSize)
	return b
}

// CentralDirectoryHeader contains the variable fields of a central directory file header.
type CentralDirectoryHeader struct {
	Name             string
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Offset           uint32
}

// Encode returns the 46-byte central directory file header followed by the name.
func (h CentralDirectoryHeader) Encode() []byte {
	t := centralDirTemplate
	binary.LittleEndian.PutUint32(t[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(t[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(t[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(t[28:30], uint16(len(h.Name)))
	// extra length, comment length, disk number, internal and external attributes (30:42) stay zero.
	binary.LittleEndian.PutUint32(t[42:46], h.Offset)

	b := make([]byte, 0, CentralDirectoryHeaderLen+len(h.Name))
	b = append(b, t[:]...)
	return append(b, h.Name...)
}

// EndOfCentralDir returns the 22-byte end of central directory record without comment.
func EndOfCentralDir(records uint16, size, offset uint32) []byte {
	b := make([]byte, EndOfCentralDirLen)
	binary.LittleEndian.PutUint32(b[0:4], EndOfCentralDirSig)
	// number of this disk and disk where central directory starts (4:8) stay zero.
	binary.LittleEndian.PutUint16(b[8:10], records)
	binary.LittleEndian.PutUint16(b[10:12], records)
	binary.LittleEndian.PutUint32(b[12:16], size)
	binary.LittleEndian.PutUint32(b[16:20], offset)
	return b
}

// EndOfCentralDirSentinel returns the end of central directory record whose count, size, and offset fields all hold
// their escape sentinels, directing readers to the zip64 end record.
func EndOfCentralDirSentinel() []byte {
	return EndOfCentralDir(Uint16Max, Uint32Max, Uint32Max)
}

// Zip64EndOfCentralDir returns the 56-byte zip64 end of central directory record.
func Zip64EndOfCentralDir(records, size, offset uint64) []byte {
	b := make([]byte, Zip64EndOfCentralDirLen)
	binary.LittleEndian.PutUint32(b[0:4], Zip64EndOfCentralDirSig)
	// size of the remaining record, excluding the leading 12 bytes.
	binary.LittleEndian.PutUint64(b[4:12], Zip64EndOfCentralDirLen-12)
	binary.LittleEndian.PutUint16(b[12:14], VersionZip64)
	binary.LittleEndian.PutUint16(b[14:16], VersionZip64)
	// number of this disk and disk where central directory starts (16:24) stay zero.
	binary.LittleEndian.PutUint64(b[24:32], records)
	binary.LittleEndian.PutUint64(b[32:40], records)
	binary.LittleEndian.PutUint64(b[40:48], size)
	binary.LittleEndian.PutUint64(b[48:56], offset)
	return b
}

// Zip64EndLocator returns the 20-byte zip64 end of central directory locator pointing at the zip64 record stored at
// the given offset.
func Zip64EndLocator(offset uint64) []byte {
	b := make([]byte, Zip64EndLocatorLen)
	binary.LittleEndian.PutUint32(b[0:4], Zip64EndLocatorSig)
	// disk with the zip64 end record (4:8) stays zero.
	binary.LittleEndian.PutUint64(b[8:16], offset)
	binary.LittleEndian.PutUint32(b[16:20], 1)
	return b
}
