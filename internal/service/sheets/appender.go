// Package sheets defines the interface for spreadsheet row sinks.
package sheets

import "context"

// Appender appends one row to the end of a sheet.
type Appender interface {
	// AppendRow writes values as a new row after the last non-empty one.
	AppendRow(ctx context.Context, values []any) error
}
