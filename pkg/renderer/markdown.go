package renderer

import (
	"bytes"
	"strings"
	"text/template"
)

const markdownTemplate = `
{{- range .Blocks }}
{{- if .Heading }}
{{ heading .Level }} {{ .Heading }}
{{- end }}
{{- with .Table }}
| {{ row .Headers }} |
|{{ range .Headers }}---|{{ end }}
{{- range .Rows }}
| {{ row . }} |
{{- end }}
{{ end }}
{{- end }}
`

var markdown = template.Must(template.New("summary").Funcs(template.FuncMap{
	"heading": func(level int) string {
		if level < 1 {
			level = 1
		}
		return strings.Repeat("#", level)
	},
	"row": func(cells []string) string {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = escapeCell(c)
		}
		return strings.Join(escaped, " | ")
	},
}).Parse(markdownTemplate))

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// Markdown renders the summary as GitHub flavoured markdown.
func (s Summary) Markdown() (string, error) {
	var buf bytes.Buffer
	if err := markdown.Execute(&buf, s); err != nil {
		return "", err
	}
	return strings.TrimLeft(buf.String(), "\n"), nil
}
