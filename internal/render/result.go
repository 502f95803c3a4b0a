// Package render turns raw Notion search responses into an HTML results table.
//
// Result items are loosely shaped: a field may be missing, null, or of an
// unexpected type. Nothing here fails on a malformed item; every field
// degrades to a fixed fallback instead.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Object is the discriminator carried by every search result.
type Object string

const (
	ObjectPage     Object = "page"
	ObjectDatabase Object = "database"
	ObjectUnknown  Object = "unknown"
)

// Fallback strings for missing data.
const (
	UntitledPage     = "Untitled"
	UntitledDatabase = "Untitled Database"
	InvalidDate      = "Invalid Date"
	DefaultURL       = "#"
)

// Item is one normalized table row.
type Item struct {
	Object     Object
	Title      string
	Type       string
	Created    string
	LastEdited string
	URL        string
}

// jsonObject is a lazily decoded JSON object.
type jsonObject map[string]json.RawMessage

// decodeObject returns nil for anything that is not a JSON object.
func decodeObject(raw json.RawMessage) jsonObject {
	if len(raw) == 0 {
		return nil
	}
	var o jsonObject
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	return o
}

func (o jsonObject) object(key string) jsonObject {
	return decodeObject(o[key])
}

// str returns the value at key if it is a JSON string.
func (o jsonObject) str(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// array returns the elements at key, or nil if the value is not an array.
func (o jsonObject) array(key string) []json.RawMessage {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	return elems
}

// plainText returns the plain_text of a rich text run. Scalars other than
// strings are rendered as their literal JSON text; anything else is empty.
func plainText(run json.RawMessage) string {
	raw, ok := decodeObject(run)["plain_text"]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch v.(type) {
	case float64, bool:
		return string(bytes.TrimSpace(raw))
	default:
		return ""
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// objectKind reads the discriminator, defaulting to ObjectUnknown.
func objectKind(o jsonObject) Object {
	if s := o.str("object"); s != "" {
		return Object(s)
	}
	return ObjectUnknown
}

// Capitalize upper-cases the first rune and leaves the rest untouched.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Items decodes a search response body into normalized rows. An absent or
// non-array results field yields no rows. Only a body that is not a JSON
// object is an error.
func Items(body []byte, opts Options) ([]Item, error) {
	var top jsonObject
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("decode search response: not a JSON object")
	}

	results := top.array("results")
	items := make([]Item, 0, len(results))
	for _, raw := range results {
		items = append(items, normalize(decodeObject(raw), opts))
	}
	return items, nil
}

func normalize(o jsonObject, opts Options) Item {
	kind := objectKind(o)
	url := o.str("url")
	if url == "" {
		url = DefaultURL
	}
	return Item{
		Object:     kind,
		Title:      extractTitle(o, kind),
		Type:       Capitalize(string(kind)),
		Created:    FormatTimestamp(o.str("created_time"), opts),
		LastEdited: FormatTimestamp(o.str("last_edited_time"), opts),
		URL:        url,
	}
}
