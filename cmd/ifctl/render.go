package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// maxExcerpt bounds the source text shown per citation.
const maxExcerpt = 120

func renderIngest(w io.Writer, documentID string, res ingestResponse) {
	if res.Status != "ingested" {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("✗ "+res.Status), res.Reason)
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("document:"), documentID)
		return
	}
	fmt.Fprintf(w, "%s %d chunks\n", okStyle.Render("✓ ingested"), res.Chunks)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("document:"), res.DocumentID)
}

func renderAnswer(w io.Writer, res queryResponse) {
	fmt.Fprintln(w, answerStyle.Render(res.Answer))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("retrieved %d of top %d", res.Metadata.Retrieved, res.Metadata.TopK)))
	if len(res.Sources) == 0 {
		return
	}

	fmt.Fprintln(w, titleStyle.Render("Sources"))
	for i, src := range res.Sources {
		file := src.File
		if file == "" {
			file = src.DocID
		}
		fmt.Fprintf(w, "%s %s p.%d %s\n",
			labelStyle.Render(fmt.Sprintf("[%d]", i+1)),
			file,
			src.Page,
			dimStyle.Render(fmt.Sprintf("(%.3f)", src.Score)),
		)
		if ex := excerpt(src.Text, maxExcerpt); ex != "" {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render(ex))
		}
	}
}

func renderDelete(w io.Writer, res deleteResponse) {
	fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓ deleted"), res.DocumentID)
}

func renderHealth(w io.Writer, serverURL string, res healthResponse) {
	status := okStyle.Render("● " + res.Status)
	if res.Status != "ok" {
		status = warnStyle.Render("● " + res.Status)
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Server Status:"), status)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Server URL:"), serverURL)
}

// excerpt collapses whitespace and truncates s to n runes.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return "..."
	}
	return string(r[:n-3]) + "..."
}
