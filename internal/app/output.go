package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputFormatText outputFormat = "text"
	outputFormatJSON outputFormat = "json"
	outputFormatYAML outputFormat = "yaml"
)

func parseOutputFormat(rawValue string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(strings.TrimSpace(rawValue))) {
	case "", outputFormatText:
		return outputFormatText, nil
	case outputFormatJSON:
		return outputFormatJSON, nil
	case outputFormatYAML:
		return outputFormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %s (expected text, json, or yaml)", rawValue)
	}
}

// textRenderer is implemented by reports that have a human readable form.
type textRenderer interface {
	renderText(writer io.Writer) error
}

func renderReport(writer io.Writer, format outputFormat, report textRenderer) error {
	switch format {
	case outputFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case outputFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return report.renderText(writer)
	}
}
