package report

import (
	"encoding/json"
	"io"

	"plancost/internal/errors"
)

// Format selects an export encoding
type Format string

const (
	// FormatJSON is the full report as an indented JSON object
	FormatJSON Format = "json"

	// FormatCSV is a flat row-per-recommendation table
	FormatCSV Format = "csv"

	// FormatYAML is the full report as a YAML document
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name from a flag or config value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatYAML:
		return Format(s), nil
	}
	return "", errors.Newf(errors.TypeConfig, "unsupported export format %q (json, csv, yaml)", s)
}

// Exporter renders a report in a specific format
type Exporter interface {
	// Format returns the format this exporter produces
	Format() Format

	// Export writes the rendered report
	Export(w io.Writer, report *CostReport) error
}

var exporters = make(map[Format]Exporter)

// RegisterExporter adds an exporter to the registry, replacing any
// previous exporter for the same format.
func RegisterExporter(e Exporter) {
	exporters[e.Format()] = e
}

func init() {
	RegisterExporter(jsonExporter{})
	RegisterExporter(csvExporter{})
	RegisterExporter(yamlExporter{})
}

// Export renders the report through the registered exporter
func Export(w io.Writer, report *CostReport, format Format) error {
	e, ok := exporters[format]
	if !ok {
		return errors.Newf(errors.TypeConfig, "unsupported export format %q", format)
	}
	return e.Export(w, report)
}

// jsonExporter renders the report as indented JSON
type jsonExporter struct{}

func (jsonExporter) Format() Format { return FormatJSON }

func (jsonExporter) Export(w io.Writer, report *CostReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Internal("failed to encode report as JSON", err)
	}
	return nil
}

// ImportJSON reads a report previously exported as JSON
func ImportJSON(r io.Reader) (*CostReport, error) {
	var report CostReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to decode JSON report", err)
	}
	return &report, nil
}
