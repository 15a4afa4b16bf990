package textenc

import (
	"bytes"
	"testing"
)

func TestDecodeUTF8(t *testing.T) {
	text, info, err := Decode([]byte("hello\nworld\n"), "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Encoding != UTF8 || info.LineEnding != LF {
		t.Errorf("info = %+v", info)
	}
	if text != "hello\nworld\n" {
		t.Errorf("text = %q", text)
	}
}

func TestDecodeUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom text")...)
	text, info, err := Decode(data, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Encoding != UTF8Sig {
		t.Errorf("encoding = %q, want %q", info.Encoding, UTF8Sig)
	}
	if text != "bom text" {
		t.Errorf("text = %q", text)
	}
}

func TestDecodeCRLF(t *testing.T) {
	text, info, err := Decode([]byte("a\r\nb\r\n"), "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.LineEnding != CRLF {
		t.Errorf("line ending = %q, want crlf", info.LineEnding)
	}
	if text != "a\nb\n" {
		t.Errorf("text not normalised: %q", text)
	}
}

func TestDecodeFallbackCharmap(t *testing.T) {
	// 0xE9 is é in latin-1 and invalid as a lone UTF-8 byte.
	data := []byte{'c', 'a', 'f', 0xE9}
	text, info, err := Decode(data, Latin1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Encoding != Latin1 {
		t.Errorf("encoding = %q", info.Encoding)
	}
	if text != "café" {
		t.Errorf("text = %q", text)
	}
}

func TestRoundTripUTF16LE(t *testing.T) {
	enc, err := Encode("line one\nline two\n", Info{Encoding: UTF16LE, LineEnding: CRLF})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(enc, []byte{0xFF, 0xFE}) {
		t.Fatal("missing UTF-16LE BOM")
	}
	text, info, err := Decode(enc, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Encoding != UTF16LE || info.LineEnding != CRLF {
		t.Errorf("info = %+v", info)
	}
	if text != "line one\nline two\n" {
		t.Errorf("text = %q", text)
	}
}

func TestRoundTripCharmap(t *testing.T) {
	text := "café\n"
	enc, err := Encode(text, Info{Encoding: Latin1, LineEnding: LF})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _, err := Decode(enc, Latin1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
}

func TestEncodeReplacesUnmappable(t *testing.T) {
	// 世 has no latin-1 mapping; save must not fail.
	out, err := Encode("世\n", Info{Encoding: Latin1, LineEnding: LF})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) == 0 {
		t.Error("empty output")
	}
}

func TestValid(t *testing.T) {
	for _, name := range []string{UTF8, UTF8Sig, UTF16LE, UTF16BE, Latin1, Windows1252, Windows1256} {
		if !Valid(name) {
			t.Errorf("Valid(%q) = false", name)
		}
	}
	if Valid("ebcdic") {
		t.Error("Valid(ebcdic) = true")
	}
}

func TestLineEndingDetection(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a\nb", LF},
		{"a\r\nb", CRLF},
		{"a\rb", CR},
		{"no endings", LF},
	}
	for _, c := range cases {
		if got := detectLineEnding(c.in); got != c.want {
			t.Errorf("detectLineEnding(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
