package tags

import (
	"bytes"
	"io"
	"os"

	"github.com/bogem/id3v2/v2"
)

// id3Tag backs mp3/wav/aiff files with ID3v2 frames via bogem/id3v2.
type id3Tag struct {
	inner    *id3v2.Tag
	origPath string
}

const musicBrainzTrackIDOwner = "http://musicbrainz.org"

func readID3(path string) (Tag, error) {
	inner, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, newErr(ErrDecode, "open id3 tag", err)
	}
	if inner == nil {
		inner = id3v2.NewEmptyTag()
	}
	return &id3Tag{inner: inner, origPath: path}, nil
}

func readID3Reader(r io.Reader) (Tag, error) {
	inner, err := id3v2.ParseReader(r, id3v2.Options{Parse: true})
	if err != nil {
		return nil, newErr(ErrDecode, "parse id3 tag", err)
	}
	if inner == nil {
		inner = id3v2.NewEmptyTag()
	}
	return &id3Tag{inner: inner}, nil
}

func (t *id3Tag) Format() Format { return FormatID3 }

func (t *id3Tag) Title() (string, bool) {
	v := t.inner.Title()
	return v, v != ""
}

func (t *id3Tag) SetTitle(v string)  { t.inner.SetTitle(v) }
func (t *id3Tag) RemoveTitle()       { t.inner.DeleteFrames(t.inner.CommonID("Title/Songname/Content description")) }

func (t *id3Tag) Artist() (string, bool) {
	v := t.inner.Artist()
	return v, v != ""
}

func (t *id3Tag) SetArtist(v string) { t.inner.SetArtist(v) }
func (t *id3Tag) RemoveArtist()      { t.inner.DeleteFrames(t.inner.CommonID("Lead artist/Lead performer/Soloist/Performing group")) }

func (t *id3Tag) AlbumInfo() (AlbumInfo, bool) {
	album := t.inner.Album()
	if album == "" {
		return AlbumInfo{}, false
	}
	info := AlbumInfo{Title: album}

	frames := t.inner.GetFrames(t.inner.CommonID("Band/Orchestra/Accompaniment"))
	for _, f := range frames {
		if tf, ok := f.(id3v2.TextFrame); ok {
			info.AlbumArtist = tf.Text
			break
		}
	}

	pics := t.inner.GetFrames(t.inner.CommonID("Attached picture"))
	for _, f := range pics {
		if pf, ok := f.(id3v2.PictureFrame); ok {
			info.Cover = &Picture{MimeType: pf.MimeType, Data: pf.Picture}
			break
		}
	}
	return info, true
}

func (t *id3Tag) SetAlbumInfo(info AlbumInfo) error {
	t.inner.SetAlbum(info.Title)
	if info.AlbumArtist != "" {
		t.inner.AddTextFrame(t.inner.CommonID("Band/Orchestra/Accompaniment"), t.inner.DefaultEncoding(), info.AlbumArtist)
	}
	if info.Cover != nil {
		if !validPictureMime(info.Cover.MimeType) {
			return newErr(ErrInvalidImageFormat, info.Cover.MimeType, nil)
		}
		t.inner.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    t.inner.DefaultEncoding(),
			MimeType:    info.Cover.MimeType,
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     info.Cover.Data,
		})
	}
	return nil
}

func (t *id3Tag) Date() (Timestamp, bool) {
	v := t.inner.GetTextFrame(t.inner.CommonID("Recording time")).Text
	if v == "" {
		return Timestamp{}, false
	}
	ts, err := ParseTimestamp(v)
	if err != nil {
		return Timestamp{}, false
	}
	return ts, true
}

func (t *id3Tag) SetDate(ts Timestamp) {
	t.inner.AddTextFrame(t.inner.CommonID("Recording time"), t.inner.DefaultEncoding(), ts.String())
}

func (t *id3Tag) RemoveDate() {
	t.inner.DeleteFrames(t.inner.CommonID("Recording time"))
}

func (t *id3Tag) Lyrics() (string, bool) {
	frames := t.inner.GetFrames(t.inner.CommonID("Unsynchronised lyrics/text transcription"))
	for _, f := range frames {
		if uf, ok := f.(id3v2.UnsynchronisedLyricsFrame); ok {
			return uf.Lyrics, true
		}
	}
	return "", false
}

func (t *id3Tag) SetLyrics(v string) {
	t.inner.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
		Encoding:          t.inner.DefaultEncoding(),
		Language:          "eng",
		ContentDescriptor: "",
		Lyrics:            v,
	})
}

func (t *id3Tag) RemoveLyrics() {
	t.inner.DeleteFrames(t.inner.CommonID("Unsynchronised lyrics/text transcription"))
}

// Comment reads comment (COMM) frames keyed by description; user-defined
// text (TXXX) frames are neither read nor written by the comment
// operations. The musicbrainz track id lives instead in a UFID frame with
// owner http://musicbrainz.org, handled separately below.
func (t *id3Tag) Comment(key string) ([]string, bool) {
	if key == "musicbrainz_trackid" {
		frames := t.inner.GetFrames(t.inner.CommonID("Unique file identifier"))
		for _, f := range frames {
			if uf, ok := f.(id3v2.UFIDFrame); ok && uf.OwnerIdentifier == musicBrainzTrackIDOwner {
				return []string{string(uf.Identifier)}, true
			}
		}
		return nil, false
	}

	var values []string
	for _, f := range t.inner.GetFrames(t.inner.CommonID("Comments")) {
		cf, ok := f.(id3v2.CommentFrame)
		if !ok || cf.Description != key {
			continue
		}
		values = append(values, cf.Text)
	}
	return values, len(values) > 0
}

func (t *id3Tag) SetComment(key, value string) {
	t.RemoveComment(key, nil)
	t.AddComment(key, value)
}

func (t *id3Tag) AddComment(key, value string) {
	if key == "musicbrainz_trackid" {
		t.inner.AddUFIDFrame(id3v2.UFIDFrame{
			OwnerIdentifier: musicBrainzTrackIDOwner,
			Identifier:      []byte(value),
		})
		return
	}
	t.inner.AddCommentFrame(id3v2.CommentFrame{
		Encoding:    t.inner.DefaultEncoding(),
		Language:    "eng",
		Description: key,
		Text:        value,
	})
}

func (t *id3Tag) RemoveComment(key string, value *string) {
	if key == "musicbrainz_trackid" {
		t.inner.DeleteFrames(t.inner.CommonID("Unique file identifier"))
		return
	}

	id := t.inner.CommonID("Comments")
	if value == nil {
		kept := make([]id3v2.Framer, 0)
		for _, f := range t.inner.GetFrames(id) {
			if cf, ok := f.(id3v2.CommentFrame); !ok || cf.Description != key {
				kept = append(kept, f)
			}
		}
		t.inner.DeleteFrames(id)
		for _, f := range kept {
			t.inner.AddFrame(id, f)
		}
		return
	}

	kept := make([]id3v2.Framer, 0)
	for _, f := range t.inner.GetFrames(id) {
		cf, ok := f.(id3v2.CommentFrame)
		if ok && cf.Description == key && cf.Text == *value {
			continue
		}
		kept = append(kept, f)
	}
	t.inner.DeleteFrames(id)
	for _, f := range kept {
		t.inner.AddFrame(id, f)
	}
}

func (t *id3Tag) CopyTo(other Tag) {
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

func (t *id3Tag) WriteToPath(path string) error {
	if path == t.origPath {
		if err := t.inner.Save(); err != nil {
			return newErr(ErrEncode, "save id3 tag", err)
		}
		return nil
	}

	data, err := t.WriteToVec()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(ErrIO, "write id3 file", err)
	}
	return nil
}

func (t *id3Tag) WriteToVec() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := t.inner.WriteTo(&buf); err != nil {
		return nil, newErr(ErrEncode, "encode id3 tag", err)
	}
	return buf.Bytes(), nil
}
