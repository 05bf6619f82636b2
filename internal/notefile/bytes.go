package notefile

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText converts raw file contents to text. A UTF-8 or UTF-16 byte
// order mark selects the encoding and is stripped; without one the data
// is read as UTF-8. CRLF line endings become LF.
func DecodeText(data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", fmt.Errorf("decoding note file bytes: %w", err)
	}

	return strings.ReplaceAll(string(out), "\r\n", "\n"), nil
}

// DecodeBytes decodes raw file contents with a zero Decoder.
func DecodeBytes(name string, data []byte) (*NoteFile, error) {
	return Decoder{}.DecodeBytes(name, data)
}

// DecodeBytes runs DecodeText and then Decode.
func (d Decoder) DecodeBytes(name string, data []byte) (*NoteFile, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	return d.Decode(name, text)
}
