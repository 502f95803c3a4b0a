package web

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func readClientJS(t *testing.T) string {
	t.Helper()
	data, err := fs.ReadFile(Static, "static/js/client.js")
	if err != nil {
		t.Fatalf("read client.js: %v", err)
	}
	return string(data)
}

func TestIndexReferencesAssets(t *testing.T) {
	page := string(Index)
	for _, want := range []string{
		`id="search-input"`,
		`id="search-button"`,
		`id="results-container"`,
		`/static/css/style.css`,
		`/static/js/client.js`,
		`</head>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("index.html missing %q", want)
		}
	}
}

func TestClientSearchContract(t *testing.T) {
	js := readClientJS(t)
	for _, want := range []string{
		`'/api/notion/search/table'`,
		`pageSize: PAGE_SIZE`,
		`var PAGE_SIZE = 10;`,
		`errorData.details || errorData.error`,
		`'Server error: ' + response.status`,
		`runSearch('', 'Loading Notion content...', 'Error loading initial results: ')`,
		`'Searching Notion...', 'Error: '`,
		`event.key === 'Enter'`,
	} {
		if !strings.Contains(js, want) {
			t.Errorf("client.js missing %q", want)
		}
	}
}

// Each search takes a fresh token and both the success and the error path
// paint only while that token is still the latest.
func TestClientLatestSearchWins(t *testing.T) {
	js := readClientJS(t)

	start := strings.Index(js, "async function runSearch(")
	if start < 0 {
		t.Fatal("runSearch not found")
	}
	body := js[start:]
	if end := strings.Index(body, "\n  }\n"); end > 0 {
		body = body[:end]
	}

	if !strings.Contains(body, "var token = ++latestToken;") {
		t.Errorf("runSearch does not issue a new token:\n%s", body)
	}
	guards := regexp.MustCompile(`if \(token === latestToken\) \{\s*(\S[^\n]*)`).FindAllStringSubmatch(body, -1)
	if len(guards) != 2 {
		t.Fatalf("expected guarded success and error paints, got %d:\n%s", len(guards), body)
	}
	if !strings.Contains(guards[0][1], "innerHTML = html") {
		t.Errorf("success paint not guarded: %q", guards[0][1])
	}
	if !strings.Contains(guards[1][1], "showMessage('error'") {
		t.Errorf("error paint not guarded: %q", guards[1][1])
	}
	if strings.Count(body, "innerHTML") != 1 {
		t.Errorf("runSearch writes innerHTML outside the guarded success path:\n%s", body)
	}
}

// Loading and error placeholders go through textContent so messages are
// never parsed as HTML.
func TestClientMessagesUseTextContent(t *testing.T) {
	js := readClientJS(t)
	start := strings.Index(js, "function showMessage(")
	if start < 0 {
		t.Fatal("showMessage not found")
	}
	body := js[start:]
	body = body[:strings.Index(body, "\n  }\n")]
	if !strings.Contains(body, "p.textContent = text;") || strings.Contains(body, "innerHTML") {
		t.Errorf("showMessage must set textContent only:\n%s", body)
	}
}
