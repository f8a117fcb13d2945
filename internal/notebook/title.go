package notebook

import (
	"encoding/json"
	"path"
	"strings"
)

type ipynbDoc struct {
	Cells []ipynbCell `json:"cells"`
}

type ipynbCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// TitleFromContent derives a display title from notebook content: the first
// markdown heading wins, otherwise the filename without its extension.
func TitleFromContent(content []byte, filename string) string {
	if title := headingFromIpynb(content); title != "" {
		return title
	}
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

func headingFromIpynb(content []byte) string {
	var doc ipynbDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		return ""
	}
	for _, cell := range doc.Cells {
		if cell.CellType != "markdown" {
			continue
		}
		for _, line := range cellLines(cell.Source) {
			line = strings.TrimSpace(line)
			if heading := strings.TrimLeft(line, "#"); heading != line {
				return strings.TrimSpace(heading)
			}
		}
	}
	return ""
}

// cellLines tolerates both source encodings the format allows: a single
// string or a list of strings.
func cellLines(raw json.RawMessage) []string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return lines
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.Split(s, "\n")
	}
	return nil
}
