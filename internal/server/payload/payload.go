// Package payload holds the open-schema report payload and the pure
// transforms applied to it before persistence: photo block extraction and
// data-URL decoding.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/dmitrijs2005/sitevisit/internal/common"
)

// Payload is a decoded JSON object with an open schema.
type Payload map[string]any

// Decode parses a JSON document that must be a non-empty object.
func Decode(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrMalformedInput)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", common.ErrMalformedInput)
	}

	var p Payload
	if err := Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrMalformedInput)
	}
	return p, nil
}

// Unmarshal decodes one JSON value into v with numbers kept as
// json.Number, so integers beyond float64 precision stay exact. Data after
// the value is an error.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Has reports whether key is present, even with a null value.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value under key as a string. ok is false when the
// key is absent. JSON null yields ("", true, nil) so callers can tell an
// explicit null from absence; non-string scalars are formatted.
func (p Payload) String(key string) (s string, ok bool, isNull bool) {
	v, present := p[key]
	if !present {
		return "", false, false
	}
	if v == nil {
		return "", true, true
	}
	return FormatScalar(v), true, false
}

// StringPtr maps a present key to a pointer (nil for JSON null).
func (p Payload) StringPtr(key string) (*string, bool) {
	s, ok, isNull := p.String(key)
	if !ok {
		return nil, false
	}
	if isNull {
		return nil, true
	}
	return &s, true
}

// FormatScalar renders a decoded JSON scalar the way it is shown in a
// spreadsheet cell: strings verbatim, integral numbers without a decimal
// point, bools as true/false.
func FormatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return formatFloat(t)
	case json.Number:
		return t.String()
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
