package parser

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var utf16beBOM = []byte{0xFE, 0xFF}

// decodeTextString converts a PDF text string to UTF-8. Strings carrying a
// UTF-16BE byte order mark are decoded as such; everything else is treated
// as PDFDocEncoding, which for the printable range matches Latin-1.
func decodeTextString(b []byte) string {
	if bytes.HasPrefix(b, utf16beBOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err == nil {
			return string(out)
		}
		// fall through to byte-wise decoding on damage
	}
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
