// Package sheets defines the outbound port for exporting transactions to a
// spreadsheet, with adapters under google/ and memory/.
package sheets

import (
	"context"

	"pecunia/internal/core"
)

// Exporter appends one transaction to the external spreadsheet and returns a
// reference to the written row. Exports are append-only: an edited
// transaction is exported again as a new row, the spreadsheet is a journal,
// not a mirror.
type Exporter interface {
	Export(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
