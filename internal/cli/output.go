// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer writes command results as aligned text or JSON.
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{format: OutputFormat(strings.ToLower(format)), writer: writer}
}

// Print writes v as JSON, or as "key: value" lines when v is a map in text
// mode. Other values in text mode use their default formatting.
func (p *Printer) Print(v any) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(v)
	case OutputFormatText, "":
		if m, ok := v.(map[string]any); ok {
			keys := make([]string, 0, len(m))
			width := 0
			for k := range m {
				keys = append(keys, k)
				width = max(width, len(k))
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(p.writer, "%-*s  %v\n", width+1, k+":", m[k])
			}
			return nil
		}
		_, err := fmt.Fprintln(p.writer, v)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintLines writes one line per item in text mode, or the items as a
// JSON array under key.
func (p *Printer) PrintLines(key string, items []string) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{key: items})
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(p.writer, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
