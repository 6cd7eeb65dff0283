package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type promptColumn struct {
	Name    string   `json:"name"`
	Type    DataType `json:"type"`
	Samples []string `json:"samples"`
}

// BuildPrompt renders the content sent to the metadata generator: the
// original filename and a two-space indented JSON array describing each
// column.
func BuildPrompt(p Profile) (string, error) {
	cols := make([]promptColumn, len(p.Columns))
	for i, c := range p.Columns {
		samples := c.SampleValues
		if samples == nil {
			samples = []string{}
		}
		cols[i] = promptColumn{Name: c.Name, Type: c.DataType, Samples: samples}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cols); err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}

	return fmt.Sprintf("<filename>%s</filename>\n\n<data>%s</data>",
		p.OriginalFilename, strings.TrimRight(buf.String(), "\n")), nil
}
