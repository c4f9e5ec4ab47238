package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// RenderPrompt expands {{ }} placeholders in a system prompt with vars.
// Prompts without placeholders are returned unchanged. Missing keys evaluate
// to nil; wrap optional values in default.
func RenderPrompt(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(fallback, val any) any {
			if val == nil || val == "" {
				return fallback
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items any) string {
			switch v := items.(type) {
			case []string:
				return strings.Join(v, sep)
			case []any:
				out := make([]string, len(v))
				for i, item := range v {
					out[i] = fmt.Sprint(item)
				}
				return strings.Join(out, sep)
			default:
				return fmt.Sprint(items)
			}
		},
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}

	return buf.String(), nil
}
