package report

import (
	"fmt"
	"strings"
)

// Markdown returns the summary as a markdown document with the same figures
// as the rendered image.
func Markdown(s *Summary) string {
	var b strings.Builder
	b.WriteString("# Country Summary\n\n")
	fmt.Fprintf(&b, "**Total countries:** %d\n\n", s.Total)
	if s.Total == 0 {
		b.WriteString("No countries stored yet. Trigger a refresh to populate the database.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "**Last refreshed:** %s\n\n", s.LastRefreshedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	if len(s.Top) == 0 {
		b.WriteString("No GDP estimates available.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "## Top %d by estimated GDP\n\n", len(s.Top))
	for i, e := range s.Top {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, escape(e.Name), FormatGDP(e.EstimatedGDP))
	}
	b.WriteString("\nEstimated GDP is population times a random factor divided by the exchange rate, so it changes on every refresh.\n")
	return b.String()
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, "`", "\\`", `[`, `\[`, `]`, `\]`, `<`, `&lt;`,
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}
