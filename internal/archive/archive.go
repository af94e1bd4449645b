// Package archive builds ZIP archives with stored (uncompressed) entries.
//
// The byte layout is produced directly rather than through archive/zip so
// the output is exactly: one local file header + name + data per entry,
// followed by the central directory, followed by the end-of-central-
// directory record. Every multi-byte integer is little-endian and CRC-32
// checksums are computed over the uncompressed entry bytes.
package archive

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sort"
)

const (
	localHeaderSig      = 0x04034b50
	centralDirSig       = 0x02014b50
	endOfCentralDirSig  = 0x06054b50
	versionNeeded       = 20 // 2.0: plain stored entries
	methodStored        = 0
	localHeaderFixedLen = 30
)

// Build produces a ZIP archive containing one stored entry per element of
// files, keyed by relative path. Paths are written as raw UTF-8 with no
// sanitization; callers must supply valid relative paths. Entries are
// written in sorted path order so output is stable for a given input.
// An empty map yields a valid empty archive.
func Build(files map[string]string) []byte {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	offsets := make(map[string]uint32, len(files))
	checksums := make(map[string]uint32, len(files))

	for _, path := range paths {
		data := []byte(files[path])
		name := []byte(path)
		crc := crc32.ChecksumIEEE(data)
		offsets[path] = uint32(buf.Len())
		checksums[path] = crc

		writeUint32(&buf, localHeaderSig)
		writeUint16(&buf, versionNeeded)
		writeUint16(&buf, 0) // general purpose flags
		writeUint16(&buf, methodStored)
		writeUint16(&buf, 0) // mod time
		writeUint16(&buf, 0) // mod date
		writeUint32(&buf, crc)
		writeUint32(&buf, uint32(len(data))) // compressed == uncompressed
		writeUint32(&buf, uint32(len(data)))
		writeUint16(&buf, uint16(len(name)))
		writeUint16(&buf, 0) // extra length
		buf.Write(name)
		buf.Write(data)
	}

	centralDirOffset := uint32(buf.Len())
	for _, path := range paths {
		data := []byte(files[path])
		name := []byte(path)

		writeUint32(&buf, centralDirSig)
		writeUint16(&buf, versionNeeded) // version made by
		writeUint16(&buf, versionNeeded) // version needed
		writeUint16(&buf, 0)             // general purpose flags
		writeUint16(&buf, methodStored)
		writeUint16(&buf, 0) // mod time
		writeUint16(&buf, 0) // mod date
		writeUint32(&buf, checksums[path])
		writeUint32(&buf, uint32(len(data)))
		writeUint32(&buf, uint32(len(data)))
		writeUint16(&buf, uint16(len(name)))
		writeUint16(&buf, 0) // extra length
		writeUint16(&buf, 0) // comment length
		writeUint16(&buf, 0) // disk number start
		writeUint16(&buf, 0) // internal attributes
		writeUint32(&buf, 0) // external attributes
		writeUint32(&buf, offsets[path])
		buf.Write(name)
	}
	centralDirSize := uint32(buf.Len()) - centralDirOffset

	writeUint32(&buf, endOfCentralDirSig)
	writeUint16(&buf, 0)                  // disk number
	writeUint16(&buf, 0)                  // central directory disk
	writeUint16(&buf, uint16(len(paths))) // entries on this disk
	writeUint16(&buf, uint16(len(paths))) // entries total
	writeUint32(&buf, centralDirSize)
	writeUint32(&buf, centralDirOffset)
	writeUint16(&buf, 0) // comment length

	return buf.Bytes()
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
