package render

import (
	"encoding/json"
	"strings"
)

// titleStrategy extracts a title from a result. applies is false when the
// result lacks the strategy's source field, so the next one is tried.
type titleStrategy func(o jsonObject) (title string, applies bool)

// titleStrategies lists the extraction order per object kind. The first
// applicable strategy decides; an empty title falls back to the default.
var titleStrategies = map[Object][]titleStrategy{
	ObjectPage: {
		propertyTitle("title"),
		propertyTitle("Name"),
		legacyTitle,
	},
	ObjectDatabase: {
		firstRunTitle,
	},
}

var defaultTitles = map[Object]string{
	ObjectPage:     UntitledPage,
	ObjectDatabase: UntitledDatabase,
}

// extractTitle runs the strategies registered for kind and falls back to
// the kind's default title.
func extractTitle(o jsonObject, kind Object) string {
	def, ok := defaultTitles[kind]
	if !ok {
		def = UntitledPage
	}
	for _, strategy := range titleStrategies[kind] {
		title, applies := strategy(o)
		if !applies {
			continue
		}
		if title == "" {
			return def
		}
		return title
	}
	return def
}

// propertyTitle reads properties.<name>.title[] as rich text. It applies
// whenever the property is set, even if it holds no text.
func propertyTitle(name string) titleStrategy {
	return func(o jsonObject) (string, bool) {
		props := o.object("properties")
		if !isSet(props[name]) {
			return "", false
		}
		return joinRuns(props.object(name), "title"), true
	}
}

// legacyTitle reads a top-level title[] used by older API versions.
// A title that is not an array yields no text.
func legacyTitle(o jsonObject) (string, bool) {
	if !isSet(o["title"]) {
		return "", false
	}
	return joinRuns(o, "title"), true
}

// firstRunTitle reads title[0].plain_text, the database title shape.
func firstRunTitle(o jsonObject) (string, bool) {
	runs := o.array("title")
	if len(runs) == 0 {
		return "", true
	}
	return plainText(runs[0]), true
}

func joinRuns(o jsonObject, key string) string {
	var b strings.Builder
	for _, run := range o.array(key) {
		b.WriteString(plainText(run))
	}
	return b.String()
}

// isSet reports whether raw holds a value other than null, false, 0 or "".
func isSet(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
