package render

import (
	"fmt"
	"strings"
	"text/template"
)

// documentTemplate typesets one formula on a tightly cropped page.
// Content is placed in display-style math mode; Preamble may add packages
// or macro definitions.
const documentTemplate = `\documentclass[border=2pt]{standalone}
\usepackage{amsmath}
\usepackage{amssymb}
{{- if .Preamble}}
{{.Preamble}}
{{- end}}
\begin{document}
$\displaystyle {{.Content}}$
\end{document}
`

var texTemplate = template.Must(template.New("tex").Parse(documentTemplate))

type templateData struct {
	Preamble string
	Content  string
}

// Document returns the standalone TeX source for content.
func Document(preamble, content string) (string, error) {
	var b strings.Builder
	data := templateData{
		Preamble: strings.TrimSpace(preamble),
		Content:  content,
	}
	if err := texTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("building TeX document: %w", err)
	}
	return b.String(), nil
}
