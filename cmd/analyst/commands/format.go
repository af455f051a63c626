package commands

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// JobMetadata holds collection job metadata for the header
type JobMetadata struct {
	JobID     string
	AnalystID string
	Types     []string
	Period    *Period
	Estimated time.Time
}

// Period represents a date range
type Period struct {
	StartDate string
	EndDate   string
}

// PrintJobHeader prints a formatted job header
func PrintJobHeader(meta JobMetadata) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  Collection job for %s\n", meta.AnalystID)
	PrintSeparator()
	fmt.Printf("  Job ID    : %s\n", meta.JobID)
	fmt.Printf("  Types     : %s\n", strings.Join(meta.Types, ", "))

	// Optional period
	if meta.Period != nil {
		fmt.Printf("  Period    : %s ~ %s\n", meta.Period.StartDate, meta.Period.EndDate)
	}
	if !meta.Estimated.IsZero() {
		fmt.Printf("  Estimated : %s\n", meta.Estimated.Local().Format("2006-01-02 15:04:05"))
	}

	PrintSeparator()
}

// PrintProgress prints a progress line
// Example: [running] 42.5% target_price 3/4, sns 1/4
func PrintProgress(status string, overall float64, detail string) {
	fmt.Printf("[%s] %5.1f%% %s\n", status, overall, detail)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}
