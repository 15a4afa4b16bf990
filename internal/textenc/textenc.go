// Package textenc detects and round-trips text encodings and line endings.
// Buffers are held in memory as UTF-8 with LF line endings; Decode records
// enough information for Encode to reproduce the on-disk representation.
package textenc

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names.
const (
	UTF8        = "utf-8"
	UTF8Sig     = "utf-8-sig" // UTF-8 with a leading BOM
	UTF16LE     = "utf-16le"
	UTF16BE     = "utf-16be"
	Latin1      = "latin-1"
	Windows1252 = "windows-1252"
	Windows1256 = "windows-1256"
)

// Line-ending names.
const (
	LF   = "lf"
	CRLF = "crlf"
	CR   = "cr"
)

// Info records the on-disk representation of a decoded buffer.
type Info struct {
	Encoding   string `json:"encoding"`
	LineEnding string `json:"line_ending"`
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw file bytes to a UTF-8, LF-normalised string.
// Detection order: BOM, UTF-8 validity, then the configured single-byte
// fallback charmap. fallback may be empty, in which case latin-1 is used
// (it accepts any byte sequence).
func Decode(data []byte, fallback string) (string, Info, error) {
	var (
		text string
		name string
	)
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		rest := data[len(bomUTF8):]
		if !utf8.Valid(rest) {
			return "", Info{}, fmt.Errorf("textenc: invalid UTF-8 after BOM")
		}
		text, name = string(rest), UTF8Sig

	case bytes.HasPrefix(data, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", Info{}, fmt.Errorf("textenc: decode utf-16le: %w", err)
		}
		text, name = string(out), UTF16LE

	case bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", Info{}, fmt.Errorf("textenc: decode utf-16be: %w", err)
		}
		text, name = string(out), UTF16BE

	case utf8.Valid(data):
		text, name = string(data), UTF8

	default:
		if fallback == "" {
			fallback = Latin1
		}
		enc, err := lookup(fallback)
		if err != nil {
			return "", Info{}, err
		}
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", Info{}, fmt.Errorf("textenc: decode %s: %w", fallback, err)
		}
		text, name = string(out), fallback
	}

	ending := detectLineEnding(text)
	return normalize(text), Info{Encoding: name, LineEnding: ending}, nil
}

// Encode converts a UTF-8, LF-normalised string back to the representation
// described by info. Runes with no mapping in a single-byte target charmap
// are replaced rather than failing the save.
func Encode(text string, info Info) ([]byte, error) {
	text = applyLineEnding(text, info.LineEnding)

	switch info.Encoding {
	case UTF8, "":
		return []byte(text), nil
	case UTF8Sig:
		return append(append([]byte{}, bomUTF8...), text...), nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	default:
		enc, err := lookup(info.Encoding)
		if err != nil {
			return nil, err
		}
		out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("textenc: encode %s: %w", info.Encoding, err)
		}
		return out, nil
	}
}

// Valid reports whether name is a supported encoding name.
func Valid(name string) bool {
	switch name {
	case UTF8, UTF8Sig, UTF16LE, UTF16BE:
		return true
	}
	_, err := lookup(name)
	return err == nil
}

func lookup(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case Latin1, "iso-8859-1":
		return charmap.ISO8859_1, nil
	case Windows1252, "cp1252":
		return charmap.Windows1252, nil
	case Windows1256, "cp1256":
		return charmap.Windows1256, nil
	default:
		return nil, fmt.Errorf("textenc: unsupported encoding: %s", name)
	}
}

// detectLineEnding returns the dominant line ending of text, defaulting to LF.
func detectLineEnding(text string) string {
	if strings.Contains(text, "\r\n") {
		return CRLF
	}
	if strings.Contains(text, "\r") {
		return CR
	}
	return LF
}

// normalize rewrites CRLF and lone CR to LF.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func applyLineEnding(text, ending string) string {
	switch ending {
	case CRLF:
		return strings.ReplaceAll(text, "\n", "\r\n")
	case CR:
		return strings.ReplaceAll(text, "\n", "\r")
	default:
		return text
	}
}
