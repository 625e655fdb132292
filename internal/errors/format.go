package errors

import (
	stderrors "errors"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// Plain errors are returned as-is; SyncErrors include code and details.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var se *SyncError
	if !stderrors.As(err, &se) {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(se.Message)

	if len(se.Details) > 0 {
		keys := make([]string, 0, len(se.Details))
		for k := range se.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("\n  ")
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(se.Details[k])
		}
	}

	sb.WriteString("\n[")
	sb.WriteString(se.Code)
	sb.WriteString("]")
	return sb.String()
}
