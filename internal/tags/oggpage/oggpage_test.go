package oggpage

import (
	"bytes"
	"testing"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	p := Page{
		Version:        0,
		HeaderType:     2,
		GranulePos:     0,
		SerialNumber:   1234,
		SequenceNumber: 0,
		Segments:       []int{5, 3},
		Payload:        []byte("helloabc"),
	}

	data := Marshal(p)

	pages, err := ParseAll(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}

	got := pages[0]
	if got.SerialNumber != p.SerialNumber {
		t.Errorf("serial number = %d, want %d", got.SerialNumber, p.SerialNumber)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("payload = %q, want %q", got.Payload, p.Payload)
	}
	if len(got.Segments) != 2 || got.Segments[0] != 5 || got.Segments[1] != 3 {
		t.Errorf("segments = %v, want [5 3]", got.Segments)
	}
}

func TestSplitPackets(t *testing.T) {
	p := Page{Segments: []int{3, 2}, Payload: []byte("abcde")}
	packets := SplitPackets(p)
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if string(packets[0]) != "abc" || string(packets[1]) != "de" {
		t.Errorf("unexpected packets: %q %q", packets[0], packets[1])
	}
}

func TestLacingWithLargeSegment(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 300)
	p := Page{SerialNumber: 1, Segments: []int{300}, Payload: payload}

	data := Marshal(p)
	pages, err := ParseAll(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pages[0].Payload) != 300 {
		t.Fatalf("payload length = %d, want 300", len(pages[0].Payload))
	}
}

func TestParseAllRejectsNonOgg(t *testing.T) {
	_, err := ParseAll([]byte("not an ogg stream"))
	if err == nil {
		t.Fatalf("expected error for non-ogg input")
	}
}
