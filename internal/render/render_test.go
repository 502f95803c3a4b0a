package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var utcOpts = Options{Location: time.UTC, Locale: language.AmericanEnglish}

func mustItems(t *testing.T, body string) []Item {
	t.Helper()
	items, err := Items([]byte(body), utcOpts)
	require.NoError(t, err)
	return items
}

func TestItemsPageWithNameProperty(t *testing.T) {
	items := mustItems(t, `{"results":[{"object":"page","properties":{"Name":{"title":[{"plain_text":"Q1"},{"plain_text":" Plan"}]}},"created_time":"2024-01-01T00:00:00Z","last_edited_time":"2024-01-02T00:00:00Z","url":"https://notion.so/x"}]}`)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, ObjectPage, got.Object)
	assert.Equal(t, "Q1 Plan", got.Title)
	assert.Equal(t, "Page", got.Type)
	assert.Equal(t, "1/1/2024, 12:00:00 AM", got.Created)
	assert.Equal(t, "1/2/2024, 12:00:00 AM", got.LastEdited)
	assert.Equal(t, "https://notion.so/x", got.URL)
}

func TestTitlePrecedence(t *testing.T) {
	cases := []struct {
		name string
		item string
		want string
	}{
		{
			name: "title property wins over Name",
			item: `{"object":"page","properties":{"title":{"title":[{"plain_text":"From title"}]},"Name":{"title":[{"plain_text":"From Name"}]}}}`,
			want: "From title",
		},
		{
			name: "empty title property is untitled even when Name is set",
			item: `{"object":"page","properties":{"title":{"title":[]},"Name":{"title":[{"plain_text":"From Name"}]}}}`,
			want: UntitledPage,
		},
		{
			name: "empty title property ignores legacy title",
			item: `{"object":"page","properties":{"title":{"title":[]}},"title":[{"plain_text":"Legacy"}]}`,
			want: UntitledPage,
		},
		{
			name: "empty Name property ignores legacy title",
			item: `{"object":"page","properties":{"Name":{}},"title":[{"plain_text":"Legacy"}]}`,
			want: UntitledPage,
		},
		{
			name: "null title property moves on to Name",
			item: `{"object":"page","properties":{"title":null,"Name":{"title":[{"plain_text":"From Name"}]}}}`,
			want: "From Name",
		},
		{
			name: "no title properties use legacy title",
			item: `{"object":"page","properties":{"Status":{"select":null}},"title":[{"plain_text":"Legacy"}]}`,
			want: "Legacy",
		},
		{
			name: "legacy top-level title array",
			item: `{"object":"page","title":[{"plain_text":"Old"},{"plain_text":" style"}]}`,
			want: "Old style",
		},
		{
			name: "legacy title that is not an array",
			item: `{"object":"page","title":"plain string"}`,
			want: UntitledPage,
		},
		{
			name: "page without any title",
			item: `{"object":"page","properties":{}}`,
			want: UntitledPage,
		},
		{
			name: "runs without plain_text",
			item: `{"object":"page","properties":{"title":{"title":[{"type":"text"},{"plain_text":null}]}}}`,
			want: UntitledPage,
		},
		{
			name: "numeric plain_text is kept literally",
			item: `{"object":"page","properties":{"Name":{"title":[{"plain_text":"Sprint "},{"plain_text":42}]}}}`,
			want: "Sprint 42",
		},
		{
			name: "database uses first run only",
			item: `{"object":"database","title":[{"plain_text":"Tasks"},{"plain_text":" ignored"}]}`,
			want: "Tasks",
		},
		{
			name: "database without title",
			item: `{"object":"database","title":[]}`,
			want: UntitledDatabase,
		},
		{
			name: "database ignores page properties",
			item: `{"object":"database","properties":{"title":{"title":[{"plain_text":"nope"}]}}}`,
			want: UntitledDatabase,
		},
		{
			name: "other object kinds stay untitled",
			item: `{"object":"block","title":[{"plain_text":"nope"}]}`,
			want: UntitledPage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := mustItems(t, `{"results":[`+tc.item+`]}`)
			require.Len(t, items, 1)
			assert.Equal(t, tc.want, items[0].Title)
		})
	}
}

func TestItemsDegradeMissingFields(t *testing.T) {
	items := mustItems(t, `{"results":[{}, null, 7, {"object":""}, {"object":12}]}`)
	require.Len(t, items, 5)
	for _, it := range items {
		assert.Equal(t, ObjectUnknown, it.Object)
		assert.Equal(t, "Unknown", it.Type)
		assert.Equal(t, UntitledPage, it.Title)
		assert.Equal(t, InvalidDate, it.Created)
		assert.Equal(t, InvalidDate, it.LastEdited)
		assert.Equal(t, DefaultURL, it.URL)
	}
}

func TestItemsNoResults(t *testing.T) {
	for _, body := range []string{`{}`, `{"results":[]}`, `{"results":null}`, `{"results":{"a":1}}`} {
		items, err := Items([]byte(body), utcOpts)
		require.NoError(t, err, body)
		assert.Empty(t, items, body)

		html, err := Table([]byte(body), utcOpts)
		require.NoError(t, err, body)
		assert.Equal(t, "<p>No results found.</p>", string(html), body)
	}
}

func TestItemsRejectsNonObjectBody(t *testing.T) {
	for _, body := range []string{``, `[]`, `"text"`, `null`, `{broken`} {
		_, err := Items([]byte(body), utcOpts)
		assert.Error(t, err, body)
	}
}

func TestTableRendersColumns(t *testing.T) {
	html, err := Table([]byte(`{"results":[{"object":"database","title":[{"plain_text":"Roadmap"}],"created_time":"2024-03-05T14:30:00.000Z","last_edited_time":"bogus","url":"https://www.notion.so/abc"}]}`), utcOpts)
	require.NoError(t, err)

	out := string(html)
	assert.True(t, strings.HasPrefix(out, "<table>"))
	for _, header := range []string{"<th>Title</th>", "<th>Type</th>", "<th>Created</th>", "<th>Last Edited</th>", "<th>URL</th>"} {
		assert.Contains(t, out, header)
	}
	assert.Contains(t, out, "<td>Roadmap</td>")
	assert.Contains(t, out, "<td>Database</td>")
	assert.Contains(t, out, "<td>3/5/2024, 2:30:00 PM</td>")
	assert.Contains(t, out, "<td>Invalid Date</td>")
	assert.Contains(t, out, `<a href="https://www.notion.so/abc" target="_blank">Open in Notion</a>`)
	assert.Equal(t, 1, strings.Count(out, "<tbody>"))
	assert.Equal(t, 2, strings.Count(out, "<tr>"))
}

func TestTableEscapesDynamicStrings(t *testing.T) {
	body := `{"results":[{"object":"<script>x</script>","title":[]},{"object":"page","properties":{"title":{"title":[{"plain_text":"<script>alert('hi')</script> & \"quotes\""}]}}}]}`
	html, err := Table([]byte(body), utcOpts)
	require.NoError(t, err)

	out := string(html)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "</script>")
	assert.Contains(t, out, "&lt;script&gt;alert(&#39;hi&#39;)&lt;/script&gt; &amp; &#34;quotes&#34;")
	assert.Contains(t, out, "<td>&lt;script&gt;x&lt;/script&gt;</td>")
}

func TestTableNeutralizesUnsafeURL(t *testing.T) {
	html, err := Table([]byte(`{"results":[{"object":"page","url":"javascript:alert(1)"}]}`), utcOpts)
	require.NoError(t, err)
	assert.NotContains(t, string(html), "javascript:")
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Page", Capitalize("page"))
	assert.Equal(t, "Database", Capitalize("database"))
	assert.Equal(t, "FOO", Capitalize("fOO"))
	assert.Equal(t, "Émoji", Capitalize("émoji"))
	assert.Equal(t, "", Capitalize(""))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, InvalidDate, FormatTimestamp("", utcOpts))
	assert.Equal(t, InvalidDate, FormatTimestamp("yesterday", utcOpts))
	assert.Equal(t, "1/1/2024, 12:00:00 AM", FormatTimestamp("2024-01-01", utcOpts))
	assert.Equal(t, "12/31/2023, 11:15:00 PM", FormatTimestamp("2023-12-31T23:15", utcOpts))

	de := Options{Location: time.FixedZone("CET", 3600), Locale: language.German}
	assert.Equal(t, "1.1.2024, 01:00:00", FormatTimestamp("2024-01-01T00:00:00Z", de))

	// Zero-value options fall back to en-US in local time.
	ts := "2024-06-01T12:00:00Z"
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).In(time.Local).Format("1/2/2006, 3:04:05 PM")
	assert.Equal(t, want, FormatTimestamp(ts, Options{}))
}

func TestLocaleFromAcceptLanguage(t *testing.T) {
	assert.Equal(t, language.AmericanEnglish, LocaleFromAcceptLanguage(""))
	assert.Equal(t, language.German, LocaleFromAcceptLanguage("de-DE,de;q=0.9,en;q=0.5"))
	assert.Equal(t, language.BritishEnglish, LocaleFromAcceptLanguage("en-GB"))
	assert.Equal(t, language.AmericanEnglish, LocaleFromAcceptLanguage("sw"))
}
