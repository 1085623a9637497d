// ABOUTME: Renders a recorded transcript as markdown, HTML, or colored console output.
// ABOUTME: Post-run diagnostics only; rendering never touches the live recorder.

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
)

// timestampLayout keeps report timestamps compact but sortable.
const timestampLayout = "15:04:05.000"

// WriteMarkdown renders the transcript entries as a markdown document.
func WriteMarkdown(w io.Writer, entries []Entry) error {
	var b strings.Builder
	b.WriteString("# Transcript\n\n")
	b.WriteString(fmt.Sprintf("%d activities recorded.\n\n", len(entries)))

	for _, e := range entries {
		arrow := "→"
		if e.Direction == DirectionReceived {
			arrow = "←"
		}
		b.WriteString(fmt.Sprintf("## %s %s `%s` (%s)\n\n",
			arrow,
			e.Timestamp.Format(timestampLayout),
			e.Activity.Type,
			e.Activity.ConversationID,
		))
		if e.Activity.Text != "" {
			b.WriteString(e.Activity.Text)
			b.WriteString("\n\n")
		}
		if marker, ok := e.Activity.StreamMarker(); ok {
			b.WriteString(fmt.Sprintf("*stream: %s", marker.StreamType))
			if marker.StreamType == "streaming" {
				b.WriteString(fmt.Sprintf(" seq=%d", marker.StreamSequence))
			}
			b.WriteString("*\n\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Transcript</title></head>
<body>
<h1>Transcript</h1>
<p>{{.Count}} activities recorded.</p>
{{range .Entries}}
<div class="entry {{.Direction}}">
  <h2>{{.Arrow}} {{.Timestamp}} <code>{{.Type}}</code> ({{.Conversation}})</h2>
  {{.Body}}
</div>
{{end}}
</body>
</html>
`))

// reportEntry is the template view of one transcript entry.
type reportEntry struct {
	Direction    string
	Arrow        string
	Timestamp    string
	Type         string
	Conversation string
	Body         template.HTML
}

// WriteHTML renders the transcript as an HTML report, converting
// message text from markdown the way the agent frontends display it.
func WriteHTML(w io.Writer, entries []Entry) error {
	views := make([]reportEntry, 0, len(entries))
	for _, e := range entries {
		arrow := "→"
		if e.Direction == DirectionReceived {
			arrow = "←"
		}

		var body template.HTML
		if e.Activity.Text != "" {
			var htmlBuf bytes.Buffer
			if err := goldmark.Convert([]byte(e.Activity.Text), &htmlBuf); err != nil {
				body = template.HTML("<p>Failed to render message text.</p>")
			} else {
				body = template.HTML(htmlBuf.String())
			}
		}

		views = append(views, reportEntry{
			Direction:    string(e.Direction),
			Arrow:        arrow,
			Timestamp:    e.Timestamp.Format(timestampLayout),
			Type:         e.Activity.Type,
			Conversation: e.Activity.ConversationID,
			Body:         body,
		})
	}

	return reportTemplate.Execute(w, struct {
		Count   int
		Entries []reportEntry
	}{Count: len(entries), Entries: views})
}

// WriteConsole prints the transcript with directional coloring: sent
// activities in cyan, received in green, typing dimmed.
func WriteConsole(w io.Writer, entries []Entry) {
	sent := color.New(color.FgCyan)
	received := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	for _, e := range entries {
		line := fmt.Sprintf("%s %-8s %-20s %s",
			e.Timestamp.Format(timestampLayout),
			e.Activity.Type,
			e.Activity.ConversationID,
			e.Activity.Text,
		)
		switch {
		case e.Activity.Type == "typing":
			_, _ = dim.Fprintf(w, "  %s\n", line)
		case e.Direction == DirectionSent:
			_, _ = sent.Fprintf(w, "→ %s\n", line)
		default:
			_, _ = received.Fprintf(w, "← %s\n", line)
		}
	}
}
