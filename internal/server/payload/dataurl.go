package payload

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sitevisit/internal/common"
)

const dataURLPrefix = "data:"

const defaultExt = "jpg"

// IsDataURL reports whether s is an embedded image rather than a reference.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, dataURLPrefix)
}

// DecodeDataURL decodes "data:<mime>;base64,<payload>" into raw bytes and a
// file extension taken from the mime subtype ("image/svg+xml" gives "svg").
// The extension falls back to jpg when the header carries no usable
// subtype. Base64 is decoded strictly: bad padding or stray characters are
// errors, never truncated output.
func DecodeDataURL(s string) ([]byte, string, error) {
	if !IsDataURL(s) {
		return nil, "", fmt.Errorf("%w: not a data URL", common.ErrMalformedInput)
	}
	header, body, ok := strings.Cut(s, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data URL has no comma separator", common.ErrMalformedInput)
	}

	// the decoder skips CR/LF, which would let a wrapped or spliced body through
	if strings.ContainsAny(body, "\r\n") {
		return nil, "", fmt.Errorf("%w: invalid base64 image: line break in payload", common.ErrMalformedInput)
	}

	raw, err := base64.StdEncoding.Strict().DecodeString(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid base64 image: %v", common.ErrMalformedInput, err)
	}

	return raw, extFromHeader(header), nil
}

func extFromHeader(header string) string {
	mime := strings.TrimPrefix(header, dataURLPrefix)
	mime, _, _ = strings.Cut(mime, ";")
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return defaultExt
	}
	sub, _, _ = strings.Cut(sub, "+")
	sub = strings.ToLower(strings.TrimSpace(sub))
	if sub == "" || !isAlnum(sub) {
		return defaultExt
	}
	return sub
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
