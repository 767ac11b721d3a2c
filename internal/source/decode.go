package source

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder turns raw bytes into text or reports that the bytes are not valid in its encoding.
type Decoder struct {
	Name   string
	Decode func(raw []byte) (string, error)
}

// Attempt records the outcome of one decoder.
type Attempt struct {
	Encoding string
	Err      error
}

// DefaultDecoders is the ordered fallback chain: strict UTF-8, strict Windows-1251,
// then ISO-8859-1 which accepts any byte sequence.
func DefaultDecoders() []Decoder {
	return []Decoder{
		{Name: "utf-8", Decode: decodeUTF8},
		{Name: "windows-1251", Decode: decodeCharmap(charmap.Windows1251)},
		{Name: "iso-8859-1", Decode: decodeCharmap(charmap.ISO8859_1)},
	}
}

// Decode runs decoders in order and returns the first success. Every attempt,
// failed or not, is returned for diagnostics.
func Decode(raw []byte, decoders []Decoder) (text string, encoding string, attempts []Attempt, err error) {
	for _, d := range decoders {
		s, decErr := d.Decode(raw)
		attempts = append(attempts, Attempt{Encoding: d.Name, Err: decErr})
		if decErr == nil {
			return s, d.Name, attempts, nil
		}
	}
	return "", "", attempts, fmt.Errorf("no decoder accepted %d bytes", len(raw))
}

func decodeUTF8(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("invalid utf-8 sequence")
	}
	return string(raw), nil
}

// decodeCharmap is strict: a byte the code page leaves undefined decodes to U+FFFD,
// which counts as failure unless the charmap defines every byte.
func decodeCharmap(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(raw []byte) (string, error) {
		out, err := cm.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		s := string(out)
		if strings.ContainsRune(s, utf8.RuneError) && !definesAllBytes(cm) {
			return "", fmt.Errorf("byte undefined in %s", cm)
		}
		return s, nil
	}
}

func definesAllBytes(cm *charmap.Charmap) bool {
	return cm == charmap.ISO8859_1
}
