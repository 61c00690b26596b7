package prompts

import "strings"

// Render appends one "<title>: <value>" line per filled text or numeric
// parameter to the template content. Declared parameters drive the order;
// values are looked up by title and absent ones are skipped. Templates
// without a declared schema fall back to request order. Binary values are
// never inlined.
func Render(t Template, params []FilledParameter) string {
	var sb strings.Builder
	sb.WriteString(t.Content)

	write := func(p FilledParameter) {
		if p.Kind.IsBinary() || p.Value.IsZero() {
			return
		}
		sb.WriteString("\n")
		sb.WriteString(p.Title)
		sb.WriteString(": ")
		sb.WriteString(p.Value.String())
	}

	if len(t.Parameters) == 0 {
		for _, p := range params {
			write(p)
		}
		return sb.String()
	}

	byTitle := make(map[string]FilledParameter, len(params))
	for _, p := range params {
		key := normalizeTitle(p.Title)
		if _, dup := byTitle[key]; !dup {
			byTitle[key] = p
		}
	}
	for _, decl := range t.Parameters {
		if p, ok := byTitle[normalizeTitle(decl.Title)]; ok {
			p.Title = decl.Title
			write(p)
		}
	}
	return sb.String()
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
