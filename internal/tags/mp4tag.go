package tags

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/abema/go-mp4"
)

// mp4 iTunes-style metadata item codes used by this backend. Freeform
// atoms (comments, musicbrainz id) are stored under the "----" atom with a
// mean/name pair, per Apple's metadata spec.
const (
	ilstTitle       = "\xa9nam"
	ilstArtist      = "\xa9ART"
	ilstAlbum       = "\xa9alb"
	ilstAlbumArtist = "aART"
	ilstDate        = "\xa9day"
	ilstLyrics      = "\xa9lyr"
	ilstComment     = "\xa9cmt"
	ilstCover       = "covr"
	ilstFreeform    = "----"

	freeformMeanITunes = "com.apple.iTunes"
)

// mp4Item is one parsed ilst child: either a classic "data"-wrapped atom
// (type is the 4-byte code) or a freeform "----" atom (type is ilstFreeform,
// name holds the iTunes freeform key).
type mp4Item struct {
	code     string
	name     string // only set for freeform items
	dataType uint32 // well-known-type field of the data atom (1=utf8, 13/14=image, 21=int)
	value    []byte
}

// mp4Tag backs mp4/m4a/m4b/m4p/m4r/m4v files by editing the ilst atom inside
// moov/udta/meta. Grounded on multitag's Mp4Tag and built on go-mp4's box
// header primitives for the generic container walk; ilst's metadata-item
// encoding itself is handled directly since go-mp4 operates at the box
// level and has no built-in iTunes metadata model.
type mp4Tag struct {
	raw   []byte // entire original file, used to splice the rewritten ilst back in
	ilstStart, ilstEnd int64 // byte range of the ilst box (header included) in raw
	items []mp4Item
}

func readMP4(path string) (Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr(ErrIO, "read mp4 file", err)
	}
	return parseMP4(data)
}

func readMP4Reader(r io.Reader) (Tag, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newErr(ErrIO, "read mp4 stream", err)
	}
	return parseMP4(data)
}

func parseMP4(data []byte) (Tag, error) {
	t := &mp4Tag{raw: data, ilstStart: -1, ilstEnd: -1}

	ilstStart, ilstEnd, ilstBody, err := findIlst(data)
	if err != nil {
		return nil, newErr(ErrDecode, "locate ilst atom", err)
	}
	if ilstStart < 0 {
		// No metadata atom present: an absent tag block is not an error.
		return t, nil
	}
	t.ilstStart, t.ilstEnd = ilstStart, ilstEnd

	items, err := parseIlstBody(ilstBody)
	if err != nil {
		return nil, newErr(ErrDecode, "parse ilst atom", err)
	}
	t.items = items
	return t, nil
}

// findIlst walks the top-level box tree moov > udta > meta > ilst using
// go-mp4's box header reader, returning the byte offsets of the ilst box
// (header included) within data, and its body.
func findIlst(data []byte) (start, end int64, body []byte, err error) {
	r := bytes.NewReader(data)

	moovStart, moovEnd, ok, err := findChildBox(r, 0, int64(len(data)), "moov")
	if err != nil || !ok {
		return -1, -1, nil, err
	}
	udtaStart, udtaEnd, ok, err := findChildBox(r, moovStart, moovEnd, "udta")
	if err != nil || !ok {
		return -1, -1, nil, err
	}
	metaStart, metaEnd, ok, err := findChildBox(r, udtaStart, udtaEnd, "meta")
	if err != nil || !ok {
		return -1, -1, nil, err
	}
	// The "meta" box itself carries a 4-byte version/flags field before its
	// children (full box), which a plain box header walk would stumble on;
	// skip it explicitly.
	ilstStart, ilstEnd, ok, err := findChildBox(r, metaStart+4, metaEnd, "ilst")
	if err != nil || !ok {
		return -1, -1, nil, err
	}

	hdrInfo, err := readBoxHeaderAt(r, ilstStart)
	if err != nil {
		return -1, -1, nil, err
	}
	bodyStart := ilstStart + int64(hdrInfo.HeaderSize)
	return ilstStart, ilstEnd, data[bodyStart:ilstEnd], nil
}

// findChildBox scans the box sequence in [rangeStart, rangeEnd) for a box
// whose type matches want, returning its [start,end) within the stream.
func findChildBox(r *bytes.Reader, rangeStart, rangeEnd int64, want string) (start, end int64, found bool, err error) {
	pos := rangeStart
	for pos < rangeEnd {
		info, err := readBoxHeaderAt(r, pos)
		if err != nil {
			return 0, 0, false, err
		}
		boxEnd := pos + int64(info.Size)
		if info.Type.String() == want {
			return pos, boxEnd, true, nil
		}
		if info.Size == 0 {
			break
		}
		pos = boxEnd
	}
	return 0, 0, false, nil
}

func readBoxHeaderAt(r *bytes.Reader, offset int64) (*mp4.BoxInfo, error) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	info, err := mp4.ReadBoxInfo(r)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// parseIlstBody parses the sequence of metadata-item atoms inside ilst. Each
// item atom is [size][4-byte code][nested atoms], the innermost of which is
// a "data" atom: [size]["data"][well-known type, 4 bytes][locale, 4 bytes][payload].
func parseIlstBody(body []byte) ([]mp4Item, error) {
	var items []mp4Item
	pos := 0
	for pos < len(body) {
		if pos+8 > len(body) {
			break
		}
		size := int(binary.BigEndian.Uint32(body[pos:]))
		code := string(body[pos+4 : pos+8])
		if size < 8 || pos+size > len(body) {
			break
		}
		itemBody := body[pos+8 : pos+size]

		if code == ilstFreeform {
			name, dataType, value := parseFreeformItem(itemBody)
			items = append(items, mp4Item{code: ilstFreeform, name: name, dataType: dataType, value: value})
		} else {
			dataType, value := parseDataAtom(itemBody)
			items = append(items, mp4Item{code: code, dataType: dataType, value: value})
		}

		pos += size
	}
	return items, nil
}

// parseDataAtom finds the nested "data" atom within an item's body and
// returns its well-known type and payload.
func parseDataAtom(itemBody []byte) (uint32, []byte) {
	pos := 0
	for pos+16 <= len(itemBody) {
		size := int(binary.BigEndian.Uint32(itemBody[pos:]))
		code := string(itemBody[pos+4 : pos+8])
		if size < 16 || pos+size > len(itemBody) {
			break
		}
		if code == "data" {
			dataType := binary.BigEndian.Uint32(itemBody[pos+8:])
			payload := itemBody[pos+16 : pos+size]
			return dataType, payload
		}
		pos += size
	}
	return 0, nil
}

// parseFreeformItem parses a "----" atom's mean/name/data triple.
func parseFreeformItem(itemBody []byte) (name string, dataType uint32, value []byte) {
	pos := 0
	for pos+8 <= len(itemBody) {
		size := int(binary.BigEndian.Uint32(itemBody[pos:]))
		code := string(itemBody[pos+4 : pos+8])
		if size < 8 || pos+size > len(itemBody) {
			break
		}
		switch code {
		case "name":
			name = string(itemBody[pos+12 : pos+size])
		case "data":
			dataType = binary.BigEndian.Uint32(itemBody[pos+8:])
			value = itemBody[pos+16 : pos+size]
		}
		pos += size
	}
	return name, dataType, value
}

func (t *mp4Tag) Format() Format { return FormatMP4 }

func (t *mp4Tag) findByCode(code string) (*mp4Item, int) {
	for i := range t.items {
		if t.items[i].code == code {
			return &t.items[i], i
		}
	}
	return nil, -1
}

func (t *mp4Tag) findFreeform(name string) (*mp4Item, int) {
	for i := range t.items {
		if t.items[i].code == ilstFreeform && t.items[i].name == name {
			return &t.items[i], i
		}
	}
	return nil, -1
}

func (t *mp4Tag) getText(code string) (string, bool) {
	item, _ := t.findByCode(code)
	if item == nil {
		return "", false
	}
	return string(item.value), true
}

func (t *mp4Tag) setText(code, value string) {
	if item, _ := t.findByCode(code); item != nil {
		item.value = []byte(value)
		item.dataType = 1
		return
	}
	t.items = append(t.items, mp4Item{code: code, dataType: 1, value: []byte(value)})
}

func (t *mp4Tag) removeCode(code string) {
	_, idx := t.findByCode(code)
	if idx < 0 {
		return
	}
	t.items = append(t.items[:idx], t.items[idx+1:]...)
}

func (t *mp4Tag) Title() (string, bool) { return t.getText(ilstTitle) }
func (t *mp4Tag) SetTitle(v string)     { t.setText(ilstTitle, v) }
func (t *mp4Tag) RemoveTitle()          { t.removeCode(ilstTitle) }

func (t *mp4Tag) Artist() (string, bool) { return t.getText(ilstArtist) }
func (t *mp4Tag) SetArtist(v string)     { t.setText(ilstArtist, v) }
func (t *mp4Tag) RemoveArtist()          { t.removeCode(ilstArtist) }

func (t *mp4Tag) AlbumInfo() (AlbumInfo, bool) {
	title, ok := t.getText(ilstAlbum)
	if !ok {
		return AlbumInfo{}, false
	}
	info := AlbumInfo{Title: title}
	if artist, ok := t.getText(ilstAlbumArtist); ok {
		info.AlbumArtist = artist
	}
	if item, _ := t.findByCode(ilstCover); item != nil {
		info.Cover = &Picture{MimeType: mp4ImageMimeFromType(item.dataType), Data: item.value}
	}
	return info, true
}

func mp4ImageMimeFromType(dataType uint32) string {
	switch dataType {
	case 14:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

func mp4ImageTypeFromMime(mime string) (uint32, bool) {
	switch mime {
	case "image/jpeg":
		return 13, true
	case "image/png":
		return 14, true
	default:
		return 0, false
	}
}

func (t *mp4Tag) SetAlbumInfo(info AlbumInfo) error {
	t.setText(ilstAlbum, info.Title)
	if info.AlbumArtist != "" {
		t.setText(ilstAlbumArtist, info.AlbumArtist)
	}
	if info.Cover != nil {
		dataType, ok := mp4ImageTypeFromMime(info.Cover.MimeType)
		if !ok {
			return newErr(ErrInvalidImageFormat, info.Cover.MimeType, nil)
		}
		t.removeCode(ilstCover)
		t.items = append(t.items, mp4Item{code: ilstCover, dataType: dataType, value: info.Cover.Data})
	}
	return nil
}

// Date is kept as the full YYYY-MM-DD text regardless, but year-only
// timestamps are rendered as just the year, matching common
// iTunes-tagger behavior.
func (t *mp4Tag) Date() (Timestamp, bool) {
	v, ok := t.getText(ilstDate)
	if !ok {
		return Timestamp{}, false
	}
	ts, err := ParseTimestamp(v)
	if err != nil {
		return Timestamp{}, false
	}
	return ts, true
}

func (t *mp4Tag) SetDate(ts Timestamp) { t.setText(ilstDate, ts.String()) }
func (t *mp4Tag) RemoveDate()          { t.removeCode(ilstDate) }

func (t *mp4Tag) Lyrics() (string, bool) { return t.getText(ilstLyrics) }
func (t *mp4Tag) SetLyrics(v string)     { t.setText(ilstLyrics, v) }
func (t *mp4Tag) RemoveLyrics()          { t.removeCode(ilstLyrics) }

// Comment stores freeform atoms under com.apple.iTunes. The well-known
// "\xa9cmt" atom is used only for the bare "comment" key; everything
// else is a freeform item keyed by name.
func (t *mp4Tag) Comment(key string) ([]string, bool) {
	if key == "comment" {
		v, ok := t.getText(ilstComment)
		if !ok {
			return nil, false
		}
		return []string{v}, true
	}
	item, _ := t.findFreeform(mp4FreeformName(key))
	if item == nil {
		return nil, false
	}
	return []string{string(item.value)}, true
}

func mp4FreeformName(key string) string {
	if key == "musicbrainz_trackid" {
		return "MusicBrainz Track Id"
	}
	return key
}

func (t *mp4Tag) SetComment(key, value string) {
	t.RemoveComment(key, nil)
	t.AddComment(key, value)
}

func (t *mp4Tag) AddComment(key, value string) {
	if key == "comment" {
		t.setText(ilstComment, value)
		return
	}
	t.items = append(t.items, mp4Item{
		code:     ilstFreeform,
		name:     mp4FreeformName(key),
		dataType: 1,
		value:    []byte(value),
	})
}

func (t *mp4Tag) RemoveComment(key string, value *string) {
	if key == "comment" {
		t.removeCode(ilstComment)
		return
	}
	name := mp4FreeformName(key)
	kept := t.items[:0:0]
	for _, item := range t.items {
		if item.code == ilstFreeform && item.name == name {
			if value != nil && string(item.value) != *value {
				kept = append(kept, item)
			}
			continue
		}
		kept = append(kept, item)
	}
	t.items = kept
}

func (t *mp4Tag) CopyTo(other Tag) {
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

// encodeIlst rebuilds the ilst box (header included) from t.items.
func (t *mp4Tag) encodeIlst() []byte {
	var body bytes.Buffer
	for _, item := range t.items {
		var inner bytes.Buffer
		if item.code == ilstFreeform {
			writeAtom(&inner, "mean", append([]byte{0, 0, 0, 0}, []byte(freeformMeanITunes)...))
			writeAtom(&inner, "name", append([]byte{0, 0, 0, 0}, []byte(item.name)...))
			writeDataAtom(&inner, item.dataType, item.value)
		} else {
			writeDataAtom(&inner, item.dataType, item.value)
		}

		writeAtom(&body, item.code, inner.Bytes())
	}

	var out bytes.Buffer
	writeAtom(&out, "ilst", body.Bytes())
	return out.Bytes()
}

func writeAtom(w *bytes.Buffer, code string, payload []byte) {
	size := uint32(8 + len(payload))
	binary.Write(w, binary.BigEndian, size)
	w.WriteString(code)
	w.Write(payload)
}

func writeDataAtom(w *bytes.Buffer, dataType uint32, value []byte) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.BigEndian, dataType)
	binary.Write(&payload, binary.BigEndian, uint32(0)) // locale
	payload.Write(value)
	writeAtom(w, "data", payload.Bytes())
}

func (t *mp4Tag) WriteToVec() ([]byte, error) {
	if t.ilstStart < 0 {
		// No ilst atom existed; callers writing a brand-new tag onto a file
		// with no metadata atom at all is out of scope here (the scheduler
		// writes metadata onto files the extractor already produced) —
		// surface as UnsupportedAudioFormat.
		return nil, newErr(ErrUnsupportedAudioFormat, "mp4 file has no udta/meta/ilst atom to rewrite", nil)
	}

	newIlst := t.encodeIlst()

	out := make([]byte, 0, len(t.raw)-int(t.ilstEnd-t.ilstStart)+len(newIlst))
	out = append(out, t.raw[:t.ilstStart]...)
	out = append(out, newIlst...)
	out = append(out, t.raw[t.ilstEnd:]...)
	return out, nil
}

func (t *mp4Tag) WriteToPath(path string) error {
	data, err := t.WriteToVec()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(ErrIO, "write mp4 file", err)
	}
	return nil
}
