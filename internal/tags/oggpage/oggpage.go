// Package oggpage implements just enough of the Ogg bitstream container
// format (RFC 3533) to locate, replace, and re-serialize the comment-header
// packet carried by Opus and Vorbis streams. This is a deliberately
// stdlib-only corner of the tag abstraction: no example repo in the
// reference corpus carries a page-level Ogg container library, unlike the
// ID3/FLAC/MP4 backends, which build on real third-party decoders. See
// DESIGN.md for the justification.
package oggpage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// crcTable drives the Ogg page checksum: CRC-32 with polynomial 0x04c11db7,
// processed MSB-first, zero initial value, no final XOR.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		t[i] = uint32(i) << 24
		for j := 0; j < 8; j++ {
			t[i] = t[i]<<1 ^ (t[i]>>31)*0x04c11db7
		}
	}
	return t
}()

// ErrNotOgg is returned when the input doesn't start with an OggS capture
// pattern.
var ErrNotOgg = errors.New("oggpage: not an Ogg bitstream")

// Page is one parsed Ogg page: header fields plus the concatenated payload
// of every packet segment it carries.
type Page struct {
	Version        uint8
	HeaderType     uint8
	GranulePos     int64
	SerialNumber   uint32
	SequenceNumber uint32
	Segments       []int // lengths of each packet segment (lacing values summed per packet)
	Payload        []byte
}

// ReadAll parses every page in r.
func ReadAll(r io.Reader) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseAll(data)
}

// ParseAll parses every page in data.
func ParseAll(data []byte) ([]Page, error) {
	var pages []Page
	pos := 0
	for pos < len(data) {
		page, n, err := parseOne(data[pos:])
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
		pos += n
	}
	return pages, nil
}

func parseOne(data []byte) (Page, int, error) {
	if len(data) < 27 || !bytes.Equal(data[0:4], []byte("OggS")) {
		return Page{}, 0, ErrNotOgg
	}

	var p Page
	p.Version = data[4]
	p.HeaderType = data[5]
	p.GranulePos = int64(binary.LittleEndian.Uint64(data[6:14]))
	p.SerialNumber = binary.LittleEndian.Uint32(data[14:18])
	p.SequenceNumber = binary.LittleEndian.Uint32(data[18:22])
	segCount := int(data[26])

	if len(data) < 27+segCount {
		return Page{}, 0, errors.New("oggpage: truncated segment table")
	}
	lacing := data[27 : 27+segCount]

	bodyStart := 27 + segCount
	bodyLen := 0
	var packetLens []int
	run := 0
	for _, l := range lacing {
		run += int(l)
		bodyLen += int(l)
		if l < 255 {
			packetLens = append(packetLens, run)
			run = 0
		}
	}
	if run > 0 {
		packetLens = append(packetLens, run)
	}

	if len(data) < bodyStart+bodyLen {
		return Page{}, 0, errors.New("oggpage: truncated page body")
	}

	p.Segments = packetLens
	p.Payload = append([]byte(nil), data[bodyStart:bodyStart+bodyLen]...)

	return p, bodyStart + bodyLen, nil
}

// Marshal re-serializes a page, recomputing its CRC and segment table from
// Payload and Segments.
func Marshal(p Page) []byte {
	lacing := lacingFor(p.Segments)

	var buf bytes.Buffer
	buf.WriteString("OggS")
	buf.WriteByte(p.Version)
	buf.WriteByte(p.HeaderType)
	var granule [8]byte
	binary.LittleEndian.PutUint64(granule[:], uint64(p.GranulePos))
	buf.Write(granule[:])
	var serial, seq [4]byte
	binary.LittleEndian.PutUint32(serial[:], p.SerialNumber)
	binary.LittleEndian.PutUint32(seq[:], p.SequenceNumber)
	buf.Write(serial[:])
	buf.Write(seq[:])
	buf.Write([]byte{0, 0, 0, 0}) // CRC placeholder
	buf.WriteByte(byte(len(lacing)))
	buf.Write(lacing)
	buf.Write(p.Payload)

	out := buf.Bytes()
	var crc uint32
	for _, b := range zeroedCRC(out) {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	binary.LittleEndian.PutUint32(out[22:26], crc)
	return out
}

// zeroedCRC returns a copy of data with the CRC field (bytes 22:26) zeroed,
// as required before computing the real checksum over the whole page.
func zeroedCRC(data []byte) []byte {
	out := append([]byte(nil), data...)
	for i := 22; i < 26; i++ {
		out[i] = 0
	}
	return out
}

func lacingFor(segments []int) []byte {
	var lacing []byte
	for _, total := range segments {
		for total >= 255 {
			lacing = append(lacing, 255)
			total -= 255
		}
		lacing = append(lacing, byte(total))
	}
	return lacing
}

// SplitPackets rebuilds the individual packets carried by a page from its
// Segments/Payload.
func SplitPackets(p Page) [][]byte {
	var packets [][]byte
	pos := 0
	for _, l := range p.Segments {
		packets = append(packets, p.Payload[pos:pos+l])
		pos += l
	}
	return packets
}
