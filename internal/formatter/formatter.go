// package formatter renders instant mixes to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/musemix/internal/mix"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
)

// Format names an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or its common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	default:
		return "txt"
	}
}

// MixTrack is one exported mix entry.
type MixTrack struct {
	Position int      `json:"position"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artists  []string `json:"artists,omitempty"`
	Album    string   `json:"album,omitempty"`
	Source   string   `json:"source"`
}

// MixExport is the renderable view of a [mix.Result].
type MixExport struct {
	RootID       string     `json:"root_id"`
	RootName     string     `json:"root_name"`
	RootKind     string     `json:"root_kind"`
	Seeds        int        `json:"seeds"`
	Anchor       string     `json:"anchor,omitempty"`
	FromBackend  int        `json:"from_backend"`
	FromFallback int        `json:"from_fallback"`
	Aborted      bool       `json:"aborted,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
	Tracks       []MixTrack `json:"tracks"`
}

// NewMixExport builds an export from an aggregation result.
func NewMixExport(result *mix.Result) *MixExport {
	export := &MixExport{
		RootID:       result.Root.Key,
		RootName:     result.Root.Name,
		RootKind:     result.Root.Kind.String(),
		Seeds:        len(result.Seeds),
		FromBackend:  result.FromBackend,
		FromFallback: result.FromFallback,
		Aborted:      result.Aborted,
		GeneratedAt:  time.Now().UTC(),
		Tracks:       make([]MixTrack, 0, len(result.Items)),
	}
	if result.Anchor != nil {
		export.Anchor = result.Anchor.Key
	}
	for i, it := range result.Items {
		export.Tracks = append(export.Tracks, MixTrack{
			Position: i + 1,
			ID:       it.Key,
			Title:    it.Name,
			Artists:  it.Artists,
			Album:    it.Album,
			Source:   it.Strategy.String(),
		})
	}
	return export
}

func (t MixTrack) artist() string {
	if len(t.Artists) == 0 {
		return "Unknown Artist"
	}
	return strings.Join(t.Artists, ", ")
}

// Render encodes the export in the given format.
func Render(export *MixExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatJSON:
		return ExportToJSON(export)
	case FormatText, "":
		return ExportToText(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// ExportToCSV converts a MixExport to CSV format with columns: Position, ID, Title, Artist, Album, Source
func ExportToCSV(export *MixExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artist", "Album", "Source"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			strconv.Itoa(track.Position),
			track.ID,
			track.Title,
			strings.Join(track.Artists, "; "),
			track.Album,
			track.Source,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a MixExport to Markdown with a summary header and a numbered track list
func ExportToMarkdown(export *MixExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Instant Mix: %s\n\n", export.RootName)
	fmt.Fprintf(&buf, "**Root**: %s (%s)\n", export.RootID, export.RootKind)
	fmt.Fprintf(&buf, "**Seeds**: %d\n", export.Seeds)
	fmt.Fprintf(&buf, "**Tracks**: %d (%d similar, %d fallback)\n", len(export.Tracks), export.FromBackend, export.FromFallback)
	if export.Aborted {
		buf.WriteString("**Note**: the similarity backend became unreachable while building this mix\n")
	}
	buf.WriteString("\n## Tracks\n\n")

	for _, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s `%s`\n", track.Position, track.artist(), track.Title, albumPart, track.Source)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a MixExport to plain text format
func ExportToText(export *MixExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Mix: %s\n", export.RootName)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for _, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", track.Position, track.artist(), track.Title)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a MixExport to indented JSON
func ExportToJSON(export *MixExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mix: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteExport renders the export and writes it to path.
//
// Defaults to {root id}_mix.{ext} as the filename.
func WriteExport(export *MixExport, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_mix.%s", export.RootID, format.Extension())
	}

	data, err := Render(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}
