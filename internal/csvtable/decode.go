package csvtable

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw file bytes in the named encoding to a UTF-8 string.
// Supported names: utf-8 (default), latin1 / iso-8859-1, windows-1252 / cp1252.
func Decode(raw []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(bytes.TrimPrefix(raw, utf8BOM)), nil
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s input: %w", name, err)
	}
	return string(decoded), nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
