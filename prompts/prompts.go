package prompts

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// GenerateFromTemplate is a generic function that generates a prompt from any template and data.
func generateFromTemplate[T any](templateString string, data T) (string, error) {
	funcMap := template.FuncMap{
		"formatDetails": formatDetails,
		"formatFields":  formatFields,
	}

	tmpl, err := template.New("prompt").Funcs(funcMap).Parse(templateString)
	if err != nil {
		return "", err
	}
	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt.String()), nil
}

// formatDetails formats the details as sorted key-value pairs within Details tags.
func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}

	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString("<Details>\n")
	for _, key := range keys {
		builder.WriteString(fmt.Sprintf("%s: %s\n", key, details[key]))
	}
	builder.WriteString("</Details>")
	return builder.String()
}

// formatFields renders extra JSON keys as a quoted, comma-separated list.
func formatFields(fields []string) string {
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		quoted = append(quoted, fmt.Sprintf("%q", field))
	}
	return strings.Join(quoted, ", ")
}
