package batch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Output formats understood by FormatResult.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormat reports whether format names a supported output format.
func ValidFormat(format string) bool {
	return format == FormatText || format == FormatJSON
}

// FormatResult renders a batch result for the CLI in the given format.
// Unknown formats fall back to text.
func FormatResult(result Result, format string) (string, error) {
	if format == FormatJSON {
		return formatJSON(result)
	}
	return formatText(result), nil
}

// formatJSON formats the result as indented JSON.
func formatJSON(result Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data) + "\n", nil
}

// formatText formats the result as a short human-readable summary.
func formatText(result Result) string {
	var output strings.Builder

	switch {
	case result.Cancelled:
		fmt.Fprintf(&output, "Cancelled after %d image(s): %d succeeded, %d failed\n",
			result.Total(), result.SuccessCount, result.FailCount)
	case result.FailCount > 0:
		fmt.Fprintf(&output, "Transformed %d of %d image(s)\n", result.SuccessCount, result.Total())
	default:
		fmt.Fprintf(&output, "Transformed %d image(s)\n", result.SuccessCount)
	}

	if len(result.FailedFiles) > 0 {
		output.WriteString("Failed:\n")
		for _, path := range result.FailedFiles {
			fmt.Fprintf(&output, "  %s\n", path)
		}
	}

	if len(result.OutputFiles) > 0 {
		fmt.Fprintf(&output, "Output: %s\n", filepath.Dir(result.OutputFiles[0]))
	}

	return output.String()
}
