package cms

import (
	"fmt"
	"html"
	"strings"

	"github.com/matsen/citesync/internal/publication"
)

// Rendered is a title and an HTML body.
type Rendered struct {
	Title   string
	Content string
}

// RenderPost renders a publication as a post. All text is escaped.
func RenderPost(pub *publication.Publication) Rendered {
	var b strings.Builder

	if names := pub.AuthorNames(); len(names) > 0 {
		fmt.Fprintf(&b, "<p class=\"authors\">%s</p>\n", html.EscapeString(strings.Join(names, ", ")))
	}
	if cite := citation(pub); cite != "" {
		fmt.Fprintf(&b, "<p class=\"venue\">%s</p>\n", html.EscapeString(cite))
	}
	if pub.Abstract != "" {
		fmt.Fprintf(&b, "<p class=\"abstract\">%s</p>\n", html.EscapeString(pub.Abstract))
	}
	if pub.DOI != "" {
		doiURL := "https://doi.org/" + pub.DOI
		fmt.Fprintf(&b, "<p class=\"doi\"><a href=\"%s\">%s</a></p>\n",
			html.EscapeString(doiURL), html.EscapeString(pub.DOI))
	}
	fmt.Fprintf(&b, "<p class=\"scopus\">Scopus ID %s</p>\n", html.EscapeString(pub.ExternalID))

	title := pub.Title
	if title == "" {
		title = "Scopus " + pub.ExternalID
	}
	return Rendered{Title: title, Content: b.String()}
}

// RenderComment renders a citing publication as a one-line comment body.
func RenderComment(citing *publication.Publication) string {
	var parts []string
	if names := citing.AuthorNames(); len(names) > 0 {
		parts = append(parts, strings.Join(names, ", "))
	}
	if citing.Title != "" {
		parts = append(parts, citing.Title)
	}
	if cite := citation(citing); cite != "" {
		parts = append(parts, cite)
	}
	text := strings.Join(parts, ". ")
	if text == "" {
		text = "Scopus " + citing.ExternalID
	}

	if citing.DOI != "" {
		return fmt.Sprintf("%s <a href=\"%s\">doi:%s</a>",
			html.EscapeString(text), html.EscapeString("https://doi.org/"+citing.DOI), html.EscapeString(citing.DOI))
	}
	return html.EscapeString(text)
}

// citation formats "Venue 12 (2022)" from whatever parts are present.
func citation(pub *publication.Publication) string {
	var parts []string
	if pub.Venue != "" {
		parts = append(parts, pub.Venue)
	}
	if pub.Volume != "" {
		parts = append(parts, pub.Volume)
	}
	if pub.Published.Year != 0 {
		parts = append(parts, fmt.Sprintf("(%d)", pub.Published.Year))
	}
	return strings.Join(parts, " ")
}
