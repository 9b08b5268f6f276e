package tags

import (
	"bytes"
	"io"
	"os"
	"strings"

	flac "github.com/go-flac/go-flac/v2"
	"github.com/go-flac/flacpicture/v2"
	"github.com/go-flac/flacvorbis/v2"
)

// flacTag backs .flac files, carrying metadata as a Vorbis comment block
// (and, for cover art, a separate picture block) inside the FLAC container.
// Grounded on multitag's VorbisFlacTag. Writes preserve the audio stream
// bit-exactly: go-flac keeps every other metadata block and the STREAM
// frames untouched, and we only ever replace the vorbis-comment and
// picture blocks.
type flacTag struct {
	file       *flac.File
	comment    *flacvorbis.MetaDataBlockVorbisComment
	commentIdx int // index into file.Meta, -1 if not yet present
	pictureIdx int
}

func readFlac(path string) (Tag, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, newErr(ErrDecode, "parse flac file", err)
	}
	return newFlacTag(f)
}

func readFlacReader(r io.Reader) (Tag, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newErr(ErrIO, "read flac stream", err)
	}
	f, err := flac.ParseBytes(data)
	if err != nil {
		return nil, newErr(ErrDecode, "parse flac stream", err)
	}
	return newFlacTag(f)
}

func newFlacTag(f *flac.File) (Tag, error) {
	t := &flacTag{file: f, commentIdx: -1, pictureIdx: -1}

	for i, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return nil, newErr(ErrDecode, "parse vorbis comment block", err)
			}
			t.comment = cmt
			t.commentIdx = i
		}
		if block.Type == flac.Picture {
			t.pictureIdx = i
		}
	}

	if t.comment == nil {
		t.comment = flacvorbis.New()
	}

	return t, nil
}

func (t *flacTag) Format() Format { return FormatVorbisFlac }

func (t *flacTag) getOne(key string) (string, bool) {
	values, err := t.comment.Get(strings.ToUpper(key))
	if err != nil || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (t *flacTag) setOne(key, value string) {
	key = strings.ToUpper(key)
	t.comment.Comments = removeVorbisKey(t.comment.Comments, key)
	_ = t.comment.Add(key, value)
}

func (t *flacTag) removeOne(key string) {
	key = strings.ToUpper(key)
	t.comment.Comments = removeVorbisKey(t.comment.Comments, key)
}

// removeVorbisKey strips every "KEY=..." entry matching key (case-
// insensitively on the key) from a raw comment list.
func removeVorbisKey(comments []string, key string) []string {
	out := comments[:0:0]
	prefix := strings.ToUpper(key) + "="
	for _, c := range comments {
		if strings.HasPrefix(strings.ToUpper(c), prefix) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (t *flacTag) Title() (string, bool) { return t.getOne("TITLE") }
func (t *flacTag) SetTitle(v string)     { t.setOne("TITLE", v) }
func (t *flacTag) RemoveTitle()          { t.removeOne("TITLE") }

func (t *flacTag) Artist() (string, bool) {
	values, err := t.comment.Get("ARTIST")
	if err != nil || len(values) == 0 {
		return "", false
	}
	return joinArtists(values), true
}

func (t *flacTag) SetArtist(v string) {
	t.removeOne("ARTIST")
	for _, a := range splitArtists(v) {
		_ = t.comment.Add("ARTIST", a)
	}
}

func (t *flacTag) RemoveArtist() { t.removeOne("ARTIST") }

func (t *flacTag) AlbumInfo() (AlbumInfo, bool) {
	title, ok := t.getOne("ALBUM")
	if !ok {
		return AlbumInfo{}, false
	}
	info := AlbumInfo{Title: title}
	if artist, ok := t.getOne("ALBUMARTIST"); ok {
		info.AlbumArtist = artist
	}
	if t.pictureIdx >= 0 {
		pic, err := flacpicture.ParseFromMetaDataBlock(*t.file.Meta[t.pictureIdx])
		if err == nil {
			info.Cover = &Picture{MimeType: pic.MIME, Data: pic.ImageData}
		}
	}
	return info, true
}

func (t *flacTag) SetAlbumInfo(info AlbumInfo) error {
	t.setOne("ALBUM", info.Title)
	if info.AlbumArtist != "" {
		t.setOne("ALBUMARTIST", info.AlbumArtist)
	}
	if info.Cover != nil {
		if !validPictureMime(info.Cover.MimeType) {
			return newErr(ErrInvalidImageFormat, info.Cover.MimeType, nil)
		}
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Cover", info.Cover.Data, info.Cover.MimeType)
		if err != nil {
			return newErr(ErrEncode, "encode cover picture", err)
		}
		block := pic.Marshal()
		if t.pictureIdx >= 0 {
			t.file.Meta[t.pictureIdx] = &block
		} else {
			t.file.Meta = append(t.file.Meta, &block)
			t.pictureIdx = len(t.file.Meta) - 1
		}
	}
	return nil
}

func (t *flacTag) Date() (Timestamp, bool) {
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

func (t *flacTag) SetDate(ts Timestamp) { t.setOne("DATE", ts.String()) }
func (t *flacTag) RemoveDate()          { t.removeOne("DATE") }

func (t *flacTag) Lyrics() (string, bool) { return t.getOne("LYRICS") }
func (t *flacTag) SetLyrics(v string)     { t.setOne("LYRICS", v) }
func (t *flacTag) RemoveLyrics()          { t.removeOne("LYRICS") }

func (t *flacTag) Comment(key string) ([]string, bool) {
	if key == "musicbrainz_trackid" {
		key = "MUSICBRAINZ_TRACKID"
	}
	values, err := t.comment.Get(strings.ToUpper(key))
	if err != nil || len(values) == 0 {
		return nil, false
	}
	return values, true
}

func (t *flacTag) SetComment(key, value string) {
	t.removeOne(key)
	t.AddComment(key, value)
}

func (t *flacTag) AddComment(key, value string) {
	if key == "musicbrainz_trackid" {
		key = "MUSICBRAINZ_TRACKID"
	}
	_ = t.comment.Add(strings.ToUpper(key), value)
}

func (t *flacTag) RemoveComment(key string, value *string) {
	if key == "musicbrainz_trackid" {
		key = "MUSICBRAINZ_TRACKID"
	}
	key = strings.ToUpper(key)
	if value == nil {
		t.removeOne(key)
		return
	}
	prefix := key + "=" + *value
	out := t.comment.Comments[:0:0]
	for _, c := range t.comment.Comments {
		if strings.EqualFold(c, prefix) {
			continue
		}
		out = append(out, c)
	}
	t.comment.Comments = out
}

func (t *flacTag) CopyTo(other Tag) {
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

func (t *flacTag) syncMetaBlocks() error {
	block := t.comment.Marshal()
	if t.commentIdx >= 0 {
		t.file.Meta[t.commentIdx] = &block
	} else {
		t.file.Meta = append(t.file.Meta, &block)
		t.commentIdx = len(t.file.Meta) - 1
	}
	return nil
}

func (t *flacTag) WriteToPath(path string) error {
	if err := t.syncMetaBlocks(); err != nil {
		return err
	}
	if err := t.file.Save(path); err != nil {
		return newErr(ErrEncode, "save flac file", err)
	}
	return nil
}

func (t *flacTag) WriteToVec() ([]byte, error) {
	if err := t.syncMetaBlocks(); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "flac-write-*.flac")
	if err != nil {
		return nil, newErr(ErrIO, "create temp file", err)
	}
	defer os.Remove(tmp.Name())
	tmp.Close()

	if err := t.file.Save(tmp.Name()); err != nil {
		return nil, newErr(ErrEncode, "save flac file", err)
	}

	var buf bytes.Buffer
	f, err := os.Open(tmp.Name())
	if err != nil {
		return nil, newErr(ErrIO, "reopen temp file", err)
	}
	defer f.Close()
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, newErr(ErrIO, "read temp file", err)
	}
	return buf.Bytes(), nil
}
