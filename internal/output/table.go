package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/utils"
)

type Table struct {
	Headers []string
	Rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, Rows: [][]string{}}
}

func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) Format(useMarkdown bool) string {
	tbl := table.New().Headers(t.Headers...).Rows(t.Rows...)
	tbl = tbl.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	if useMarkdown {
		return tbl.Border(lipgloss.MarkdownBorder()).String()
	}
	return tbl.String()
}

// RenderVideoInfo writes a summary of a video or playlist followed by the
// formats it can be downloaded in.
func RenderVideoInfo(w io.Writer, info *jobservice.VideoInfo, useMarkdown bool) {
	title := info.Title
	if title == "" {
		title = "Unknown Video"
	}
	fmt.Fprintln(w, headerStyle.Render(title))

	var details []string
	if info.Uploader != "" {
		details = append(details, info.Uploader)
	} else if info.Channel != "" {
		details = append(details, info.Channel)
	}
	if info.IsPlaylist {
		details = append(details, fmt.Sprintf("%d videos", max(info.PlaylistCount, len(info.Entries))))
	} else {
		if info.Duration > 0 {
			details = append(details, FormatDuration(info.Duration))
		}
		if info.ViewCount > 0 {
			details = append(details, FormatViews(info.ViewCount))
		}
	}
	if len(details) > 0 {
		fmt.Fprintln(w, detailStyle.Render(strings.Join(details, " "+StyleSymbols["dot"]+" ")))
	}

	if info.IsPlaylist && len(info.Entries) > 0 {
		entries := NewTable("#", "Title", "Duration")
		for i, entry := range info.Entries {
			entries.AddRow(fmt.Sprint(i+1), entry.Title, FormatDuration(entry.Duration))
		}
		fmt.Fprintln(w, entries.Format(useMarkdown))
	}

	sections := []struct {
		name    string
		formats []jobservice.Format
	}{
		{"Formats", info.Formats},
		{"Video", info.VideoFormats},
		{"Audio", info.AudioFormats},
	}
	for _, section := range sections {
		if len(section.formats) == 0 {
			continue
		}
		formats := NewTable("ID", "Format", "Ext", "Resolution", "Size")
		for _, f := range section.formats {
			size := ""
			if f.Filesize > 0 {
				size = utils.FormatBytes(uint64(f.Filesize))
			}
			resolution := f.Resolution
			if resolution == "" && f.ABR > 0 {
				resolution = fmt.Sprintf("%.0fk", float64(f.ABR))
			}
			formats.AddRow(f.FormatID, f.Label(), f.Ext, resolution, size)
		}
		fmt.Fprintln(w, infoStyle.Render(section.name))
		fmt.Fprintln(w, formats.Format(useMarkdown))
	}
}
