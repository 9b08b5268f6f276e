package tags

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/splamy/myousync/internal/tags/oggpage"
)

const (
	opusTagsMagic   = "OpusTags"
	vorbisCommentID = "\x03vorbis"
	vendorString    = "myousync"
)

// oggTag backs both Opus (.opus) and Vorbis-in-Ogg (.ogg) files: the two
// differ only in the magic preceding the vendor/comment-list structure of
// their comment header packet, which both carry verbatim from the Vorbis
// comment spec. Grounded on multitag's OpusTag; the original's OggTag
// (plain Vorbis-in-Ogg) was left `unimplemented!()` there, so this backend
// is this implementation's own completion of that gap, using the same
// comment-header structure Opus already required.
type oggTag struct {
	format         Format
	pages          []oggpage.Page
	commentPageIdx int
	comments       []string // raw "KEY=value" entries
}

func readOgg(format Format, path string) (Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr(ErrIO, "read ogg file", err)
	}
	return parseOgg(format, data)
}

func readOggReader(format Format, r io.Reader) (Tag, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newErr(ErrIO, "read ogg stream", err)
	}
	return parseOgg(format, data)
}

func parseOgg(format Format, data []byte) (Tag, error) {
	pages, err := oggpage.ParseAll(data)
	if err != nil {
		return nil, newErr(ErrDecode, "parse ogg pages", err)
	}

	t := &oggTag{format: format, pages: pages, commentPageIdx: -1}

	for i, p := range pages {
		if isCommentPage(format, p) {
			t.commentPageIdx = i
			comments, err := parseVorbisComment(format, p.Payload)
			if err != nil {
				return nil, newErr(ErrDecode, "parse vorbis comment packet", err)
			}
			t.comments = comments
			break
		}
	}

	return t, nil
}

func isCommentPage(format Format, p oggpage.Page) bool {
	switch format {
	case FormatOpus:
		return bytes.HasPrefix(p.Payload, []byte(opusTagsMagic))
	default:
		return bytes.HasPrefix(p.Payload, []byte(vorbisCommentID))
	}
}

func parseVorbisComment(format Format, payload []byte) ([]string, error) {
	var magicLen int
	switch format {
	case FormatOpus:
		magicLen = len(opusTagsMagic)
	default:
		magicLen = len(vorbisCommentID)
	}

	pos := magicLen
	if pos+4 > len(payload) {
		return nil, nil
	}
	vendorLen := int(binary.LittleEndian.Uint32(payload[pos:]))
	pos += 4 + vendorLen

	if pos+4 > len(payload) {
		return nil, nil
	}
	count := int(binary.LittleEndian.Uint32(payload[pos:]))
	pos += 4

	comments := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(payload) {
			break
		}
		l := int(binary.LittleEndian.Uint32(payload[pos:]))
		pos += 4
		if pos+l > len(payload) {
			break
		}
		comments = append(comments, string(payload[pos:pos+l]))
		pos += l
	}
	return comments, nil
}

func (t *oggTag) Format() Format { return t.format }

func (t *oggTag) get(key string) ([]string, bool) {
	key = strings.ToUpper(key)
	var values []string
	for _, c := range t.comments {
		k, v, ok := splitComment(c)
		if ok && strings.ToUpper(k) == key {
			values = append(values, v)
		}
	}
	return values, len(values) > 0
}

func splitComment(c string) (key, value string, ok bool) {
	idx := strings.IndexByte(c, '=')
	if idx < 0 {
		return "", "", false
	}
	return c[:idx], c[idx+1:], true
}

func (t *oggTag) getOne(key string) (string, bool) {
	values, ok := t.get(key)
	if !ok {
		return "", false
	}
	return values[0], true
}

func (t *oggTag) set(key, value string) {
	t.remove(key)
	t.add(key, value)
}

// add stores a comment, applying the per-format key-casing convention:
// Vorbis-comment-in-FLAC/Ogg keys are uppercased by convention, but Opus
// carries the key through verbatim (grounded on multitag's
// OpusTag::add_comment passing the key unchanged vs.
// VorbisFlacTag::add_comment's to_ascii_uppercase).
func (t *oggTag) add(key, value string) {
	if t.format != FormatOpus {
		key = strings.ToUpper(key)
	}
	t.comments = append(t.comments, key+"="+value)
}

func (t *oggTag) remove(key string) {
	key = strings.ToUpper(key)
	out := t.comments[:0:0]
	for _, c := range t.comments {
		k, _, ok := splitComment(c)
		if ok && strings.ToUpper(k) == key {
			continue
		}
		out = append(out, c)
	}
	t.comments = out
}

func (t *oggTag) Title() (string, bool) { return t.getOne("TITLE") }
func (t *oggTag) SetTitle(v string)     { t.set("TITLE", v) }
func (t *oggTag) RemoveTitle()          { t.remove("TITLE") }

func (t *oggTag) Artist() (string, bool) {
	values, ok := t.get("ARTIST")
	if !ok {
		return "", false
	}
	return joinArtists(values), true
}

func (t *oggTag) SetArtist(v string) {
	t.remove("ARTIST")
	for _, a := range splitArtists(v) {
		t.add("ARTIST", a)
	}
}

func (t *oggTag) RemoveArtist() { t.remove("ARTIST") }

func (t *oggTag) AlbumInfo() (AlbumInfo, bool) {
	title, ok := t.getOne("ALBUM")
	if !ok {
		return AlbumInfo{}, false
	}
	info := AlbumInfo{Title: title}
	if artist, ok := t.getOne("ALBUMARTIST"); ok {
		info.AlbumArtist = artist
	}
	// Cover art for Vorbis-comment-based formats is carried as a
	// base64-encoded METADATA_BLOCK_PICTURE comment; decoding that FLAC
	// picture block is out of scope for this backend (multitag's OpusTag
	// doesn't implement cover reads either), so Cover is left nil here.
	return info, true
}

func (t *oggTag) SetAlbumInfo(info AlbumInfo) error {
	t.set("ALBUM", info.Title)
	if info.AlbumArtist != "" {
		t.set("ALBUMARTIST", info.AlbumArtist)
	}
	if info.Cover != nil && !validPictureMime(info.Cover.MimeType) {
		return newErr(ErrInvalidImageFormat, info.Cover.MimeType, nil)
	}
	return nil
}

func (t *oggTag) Date() (Timestamp, bool) {
	v, ok := t.getOne("DATE")
	if !ok {
		return Timestamp{}, false
	}
	ts, err := ParseTimestamp(v)
	if err != nil {
		return Timestamp{}, false
	}
	return ts, true
}

func (t *oggTag) SetDate(ts Timestamp) { t.set("DATE", ts.String()) }
func (t *oggTag) RemoveDate()          { t.remove("DATE") }

func (t *oggTag) Lyrics() (string, bool) { return t.getOne("LYRICS") }
func (t *oggTag) SetLyrics(v string)     { t.set("LYRICS", v) }
func (t *oggTag) RemoveLyrics()          { t.remove("LYRICS") }

func (t *oggTag) Comment(key string) ([]string, bool) {
	return t.get(key)
}

func (t *oggTag) SetComment(key, value string) {
	t.RemoveComment(key, nil)
	t.AddComment(key, value)
}

func (t *oggTag) AddComment(key, value string) {
	t.add(key, value)
}

func (t *oggTag) RemoveComment(key string, value *string) {
	if value == nil {
		t.remove(key)
		return
	}
	key = strings.ToUpper(key)
	out := t.comments[:0:0]
	for _, c := range t.comments {
		k, v, ok := splitComment(c)
		if ok && strings.ToUpper(k) == key && v == *value {
			continue
		}
		out = append(out, c)
	}
	t.comments = out
}

func (t *oggTag) CopyTo(other Tag) {
	if info, ok := t.AlbumInfo(); ok {
		_ = other.SetAlbumInfo(info)
	}
	if title, ok := t.Title(); ok {
		other.SetTitle(title)
	}
	if artist, ok := t.Artist(); ok {
		other.SetArtist(artist)
	}
	if date, ok := t.Date(); ok {
		other.SetDate(date)
	}
}

func (t *oggTag) encodeCommentPacket() []byte {
	var buf bytes.Buffer
	switch t.format {
	case FormatOpus:
		buf.WriteString(opusTagsMagic)
	default:
		buf.WriteString(vorbisCommentID)
	}

	var vendorLen [4]byte
	binary.LittleEndian.PutUint32(vendorLen[:], uint32(len(vendorString)))
	buf.Write(vendorLen[:])
	buf.WriteString(vendorString)

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(t.comments)))
	buf.Write(count[:])
	for _, c := range t.comments {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(c)))
		buf.Write(l[:])
		buf.WriteString(c)
	}

	if t.format != FormatOpus {
		// Vorbis comment headers end with a framing bit set to 1.
		buf.WriteByte(1)
	}

	return buf.Bytes()
}

func (t *oggTag) WriteToVec() ([]byte, error) {
	pages := append([]oggpage.Page(nil), t.pages...)

	newPayload := t.encodeCommentPacket()
	if t.commentPageIdx >= 0 {
		p := pages[t.commentPageIdx]
		p.Segments = []int{len(newPayload)}
		p.Payload = newPayload
		pages[t.commentPageIdx] = p
	} else if len(pages) > 0 {
		// No comment page existed (tag was absent): insert one right after
		// the first (identification) page.
		insertAt := 1
		if insertAt > len(pages) {
			insertAt = len(pages)
		}
		newPage := oggpage.Page{
			Version:        0,
			HeaderType:     0,
			SerialNumber:   pages[0].SerialNumber,
			SequenceNumber: uint32(insertAt),
			Segments:       []int{len(newPayload)},
			Payload:        newPayload,
		}
		pages = append(pages[:insertAt], append([]oggpage.Page{newPage}, pages[insertAt:]...)...)
	}

	var out bytes.Buffer
	for _, p := range pages {
		out.Write(oggpage.Marshal(p))
	}
	return out.Bytes(), nil
}

func (t *oggTag) WriteToPath(path string) error {
	data, err := t.WriteToVec()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(ErrIO, "write ogg file", err)
	}
	return nil
}
