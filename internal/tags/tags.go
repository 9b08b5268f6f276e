// Package tags exposes a single semantic tag interface over five audio
// container families: ID3-bearing files (mp3/wav/aiff),
// Vorbis-comments-in-FLAC, MP4/iTunes-style atoms, and the two
// Ogg-bitstream formats (Opus and Vorbis). The concrete backend is
// chosen once, at open time, from the file extension, and is carried
// thereafter as a closed tagged variant (Format + Tag interface).
//
// Grounded on original_source/multitag/src/lib.rs, which this package
// mirrors operation-for-operation; the per-backend storage strategy differs
// per library (bogem/id3v2, go-flac/go-flac, abema/go-mp4, and a hand-rolled
// Ogg page reader/writer — see internal/tags/oggpage and DESIGN.md).
package tags

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format identifies which backend a Tag was opened with.
type Format int

const (
	FormatID3 Format = iota
	FormatVorbisFlac
	FormatMP4
	FormatOpus
	FormatOggVorbis
)

func (f Format) String() string {
	switch f {
	case FormatID3:
		return "id3"
	case FormatVorbisFlac:
		return "vorbis-flac"
	case FormatMP4:
		return "mp4"
	case FormatOpus:
		return "opus"
	case FormatOggVorbis:
		return "ogg-vorbis"
	default:
		return "unknown"
	}
}

// Error is the closed error taxonomy for this package. Every failure this
// package returns is, or wraps, one of these sentinels; callers compare
// with errors.Is.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind enumerates the closed set of failure categories.
type ErrorKind int

const (
	ErrNoFileExtension ErrorKind = iota
	ErrInvalidFileExtension
	ErrUnsupportedAudioFormat
	ErrInvalidImageFormat
	ErrTimestampParse
	ErrDecode
	ErrEncode
	ErrIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNoFileExtension:
		return "NoFileExtension"
	case ErrInvalidFileExtension:
		return "InvalidFileExtension"
	case ErrUnsupportedAudioFormat:
		return "UnsupportedAudioFormat"
	case ErrInvalidImageFormat:
		return "InvalidImageFormat"
	case ErrTimestampParse:
		return "TimestampParseError"
	case ErrDecode:
		return "DecodeError"
	case ErrEncode:
		return "EncodeError"
	case ErrIO:
		return "IOError"
	default:
		return "UnknownError"
	}
}

func newErr(kind ErrorKind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is lets callers write errors.Is(err, tags.ErrInvalidImageFormatSentinel) (etc) by
// comparing Kind against a zero-value *Error carrying only a Kind. This
// mirrors how the sentinel-compare idiom is used elsewhere in this module.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrNoFileExtensionSentinel      = &Error{Kind: ErrNoFileExtension}
	ErrInvalidFileExtensionSentinel = &Error{Kind: ErrInvalidFileExtension}
	ErrUnsupportedAudioFormatSentinel = &Error{Kind: ErrUnsupportedAudioFormat}
	ErrInvalidImageFormatSentinel   = &Error{Kind: ErrInvalidImageFormat}
	ErrTimestampParseSentinel       = &Error{Kind: ErrTimestampParse}
)

// Timestamp is a partial date: year is mandatory, month and day optional, as
// used by the date/set_date family of operations.
type Timestamp struct {
	Year  int
	Month *int
	Day   *int
}

// String renders YYYY-MM-DD, zero-padding whatever components are present
// and omitting the rest, matching the text-valued backends' formatting.
func (t Timestamp) String() string {
	s := fmt.Sprintf("%04d", t.Year)
	if t.Month == nil {
		return s
	}
	s += fmt.Sprintf("-%02d", *t.Month)
	if t.Day == nil {
		return s
	}
	s += fmt.Sprintf("-%02d", *t.Day)
	return s
}

// ParseTimestamp parses a YYYY[-MM[-DD]] string.
func ParseTimestamp(s string) (Timestamp, error) {
	parts := strings.Split(s, "-")
	if len(parts) == 0 || len(parts[0]) == 0 {
		return Timestamp{}, newErr(ErrTimestampParse, s, nil)
	}
	var ts Timestamp
	if _, err := fmt.Sscanf(parts[0], "%d", &ts.Year); err != nil {
		return Timestamp{}, newErr(ErrTimestampParse, s, err)
	}
	if len(parts) > 1 {
		var m int
		if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
			return Timestamp{}, newErr(ErrTimestampParse, s, err)
		}
		ts.Month = &m
	}
	if len(parts) > 2 {
		var d int
		if _, err := fmt.Sscanf(parts[2], "%d", &d); err != nil {
			return Timestamp{}, newErr(ErrTimestampParse, s, err)
		}
		ts.Day = &d
	}
	return ts, nil
}

// Picture is cover art carried on an AlbumInfo.
type Picture struct {
	MimeType string
	Data     []byte
}

// allowed picture mime types.
func validPictureMime(mime string) bool {
	switch mime {
	case "image/bmp", "image/jpeg", "image/png":
		return true
	default:
		return false
	}
}

// AlbumInfo is the structured value returned/accepted by album_info.
type AlbumInfo struct {
	Title       string
	AlbumArtist string
	Cover       *Picture
}

// Tag is the uniform operation surface implemented by every backend.
type Tag interface {
	Format() Format

	Title() (string, bool)
	SetTitle(string)
	RemoveTitle()

	Artist() (string, bool)
	SetArtist(string)
	RemoveArtist()

	AlbumInfo() (AlbumInfo, bool)
	SetAlbumInfo(AlbumInfo) error

	Date() (Timestamp, bool)
	SetDate(Timestamp)
	RemoveDate()

	Lyrics() (string, bool)
	SetLyrics(string)
	RemoveLyrics()

	Comment(key string) ([]string, bool)
	SetComment(key, value string)
	AddComment(key, value string)
	RemoveComment(key string, value *string)

	// CopyTo projects the common subset (album info, title, artist, date)
	// onto other, whatever backend other is.
	CopyTo(other Tag)

	// WriteToPath persists the tag, preserving the underlying audio payload
	// bit-exactly.
	WriteToPath(path string) error
	WriteToVec() ([]byte, error)
}

// ReadFromPath opens path, dispatches on its extension, and parses the tag.
// A format whose tag block is simply absent yields an empty tag of that
// format rather than an error; other decode failures surface as ErrDecode.
func ReadFromPath(path string) (Tag, error) {
	format, err := formatFromExtension(path)
	if err != nil {
		return nil, err
	}
	return readFromPathForFormat(format, path)
}

func formatFromExtension(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return 0, newErr(ErrNoFileExtension, path, nil)
	}
	return formatFromExtensionString(ext)
}

func formatFromExtensionString(ext string) (Format, error) {
	switch ext {
	case "mp3", "wav", "aiff", "aif":
		return FormatID3, nil
	case "flac":
		return FormatVorbisFlac, nil
	case "mp4", "m4a", "m4p", "m4b", "m4r", "m4v":
		return FormatMP4, nil
	case "opus":
		return FormatOpus, nil
	case "ogg":
		return FormatOggVorbis, nil
	default:
		return 0, newErr(ErrInvalidFileExtension, ext, nil)
	}
}

func readFromPathForFormat(format Format, path string) (Tag, error) {
	switch format {
	case FormatID3:
		return readID3(path)
	case FormatVorbisFlac:
		return readFlac(path)
	case FormatMP4:
		return readMP4(path)
	case FormatOpus, FormatOggVorbis:
		return readOgg(format, path)
	default:
		return nil, newErr(ErrUnsupportedAudioFormat, format.String(), nil)
	}
}

// ReadFrom parses a tag from an in-memory reader, given an explicit
// extension (used when the original path isn't available, e.g. streaming
// input).
func ReadFrom(extension string, r io.Reader) (Tag, error) {
	format, err := formatFromExtensionString(strings.ToLower(extension))
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatID3:
		return readID3Reader(r)
	case FormatVorbisFlac:
		return readFlacReader(r)
	case FormatMP4:
		return readMP4Reader(r)
	case FormatOpus, FormatOggVorbis:
		return readOggReader(format, r)
	default:
		return nil, newErr(ErrUnsupportedAudioFormat, format.String(), nil)
	}
}

// WriteToFile writes the file form that t.WriteToVec produces to w.
func WriteToFile(t Tag, w io.Writer) error {
	data, err := t.WriteToVec()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return newErr(ErrIO, "write tag", err)
	}
	return nil
}

// joinArtists implements the multi-valued-format artist join rule: "; ".
func joinArtists(artists []string) string {
	return strings.Join(artists, "; ")
}

func splitArtists(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "; ")
}

var errNotImplemented = errors.New("operation not implemented for this backend")
