package tags

import (
	"errors"
	"testing"
)

func TestParseTimestampFull(t *testing.T) {
	ts, err := ParseTimestamp("2020-05-09")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts.Year != 2020 || ts.Month == nil || *ts.Month != 5 || ts.Day == nil || *ts.Day != 9 {
		t.Fatalf("unexpected timestamp: %+v", ts)
	}
	if got := ts.String(); got != "2020-05-09" {
		t.Errorf("String() = %q, want 2020-05-09", got)
	}
}

func TestParseTimestampYearOnly(t *testing.T) {
	ts, err := ParseTimestamp("1999")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts.Year != 1999 || ts.Month != nil {
		t.Fatalf("unexpected timestamp: %+v", ts)
	}
	if got := ts.String(); got != "1999" {
		t.Errorf("String() = %q, want 1999", got)
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	_, err := ParseTimestamp("")
	if err == nil {
		t.Fatalf("expected error for empty timestamp")
	}
	var tagErr *Error
	if !errors.As(err, &tagErr) || tagErr.Kind != ErrTimestampParse {
		t.Fatalf("expected ErrTimestampParse, got %v", err)
	}
}

func TestFormatFromExtensionString(t *testing.T) {
	cases := map[string]Format{
		"mp3":  FormatID3,
		"wav":  FormatID3,
		"aiff": FormatID3,
		"flac": FormatVorbisFlac,
		"m4a":  FormatMP4,
		"opus": FormatOpus,
		"ogg":  FormatOggVorbis,
	}
	for ext, want := range cases {
		got, err := formatFromExtensionString(ext)
		if err != nil {
			t.Errorf("%s: unexpected error %v", ext, err)
			continue
		}
		if got != want {
			t.Errorf("%s: format = %v, want %v", ext, got, want)
		}
	}
}

func TestFormatFromExtensionStringUnsupported(t *testing.T) {
	_, err := formatFromExtensionString("txt")
	var tagErr *Error
	if !errors.As(err, &tagErr) || tagErr.Kind != ErrInvalidFileExtension {
		t.Fatalf("expected ErrInvalidFileExtension, got %v", err)
	}
}

func TestFormatFromExtensionNoExtension(t *testing.T) {
	_, err := formatFromExtension("noextension")
	var tagErr *Error
	if !errors.As(err, &tagErr) || tagErr.Kind != ErrNoFileExtension {
		t.Fatalf("expected ErrNoFileExtension, got %v", err)
	}
}

func TestJoinSplitArtists(t *testing.T) {
	joined := joinArtists([]string{"A", "B", "C"})
	if joined != "A; B; C" {
		t.Fatalf("joinArtists = %q", joined)
	}
	split := splitArtists(joined)
	if len(split) != 3 || split[0] != "A" || split[2] != "C" {
		t.Fatalf("splitArtists = %v", split)
	}
}

func TestValidPictureMime(t *testing.T) {
	for _, m := range []string{"image/bmp", "image/jpeg", "image/png"} {
		if !validPictureMime(m) {
			t.Errorf("%s should be valid", m)
		}
	}
	if validPictureMime("image/gif") {
		t.Errorf("image/gif should be invalid")
	}
}
