package render

import (
	"bytes"
	"fmt"
	"html/template"
)

// NoResults is rendered instead of a table when there is nothing to show.
const NoResults = template.HTML("<p>No results found.</p>")

var tableTemplate = template.Must(template.New("results").Parse(`<table>
  <thead>
    <tr>
      <th>Title</th>
      <th>Type</th>
      <th>Created</th>
      <th>Last Edited</th>
      <th>URL</th>
    </tr>
  </thead>
  <tbody>
{{- range .}}
    <tr>
      <td>{{.Title}}</td>
      <td>{{.Type}}</td>
      <td>{{.Created}}</td>
      <td>{{.LastEdited}}</td>
      <td><a href="{{.URL}}" target="_blank">Open in Notion</a></td>
    </tr>
{{- end}}
  </tbody>
</table>
`))

// Table renders a raw search response body as an HTML fragment.
func Table(body []byte, opts Options) (template.HTML, error) {
	items, err := Items(body, opts)
	if err != nil {
		return "", err
	}
	return TableFromItems(items)
}

// TableFromItems renders already normalized rows. All dynamic values are
// escaped by html/template.
func TableFromItems(items []Item) (template.HTML, error) {
	if len(items) == 0 {
		return NoResults, nil
	}
	var buf bytes.Buffer
	if err := tableTemplate.Execute(&buf, items); err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return template.HTML(buf.String()), nil
}
