package invoicing

import "fmt"

// FormatDocNumber renders a sequence value as a document number, e.g.
// INV2026-0042.
func FormatDocNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%d-%04d", prefix, year, seq)
}
