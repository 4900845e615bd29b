package printer

import (
	"fmt"
	"strings"

	"github.com/thereceipt/printcounter/internal/receipt"
)

const (
	timestampLayout = "02-01-2006 15:04:05"
	dividerWidth    = 25
)

var divider = strings.Repeat("-", dividerWidth)

// EncodeDocument renders a receipt document as ESC/POS bytes
func EncodeDocument(doc receipt.Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid receipt: %w", err)
	}

	e := NewESCPOSEncoder()
	e.Initialize()

	// Header: bold, double size, centered
	e.SetAlignment(AlignCenter)
	e.SetTextSize(2, 2)
	e.SetBold(true)
	e.WriteLine(doc.Label)
	e.SetBold(false)
	e.SetTextSize(1, 1)
	e.WriteLine(divider)
	e.LineFeed()

	e.SetAlignment(AlignLeft)
	ts := doc.PrintedAt.Format(timestampLayout)

	switch doc.Kind {
	case receipt.KindCount:
		e.WriteLine(fmt.Sprintf("Date    : %s", ts))
		e.WriteLine(fmt.Sprintf("Order   : #%d", doc.OrderNumber))
		e.WriteLine(divider)

		// Large count line
		e.SetAlignment(AlignCenter)
		e.SetBold(true)
		e.SetTextSize(2, 2)
		e.WriteLine(fmt.Sprintf("COUNT: %d", doc.Count))
		e.SetTextSize(1, 1)
		e.SetBold(false)
		e.SetAlignment(AlignLeft)
		e.WriteLine(divider)
		e.LineFeed()

		e.SetAlignment(AlignCenter)
		e.WriteLine("Thank you!")
		e.WriteLine("Printed by printcounter")

	case receipt.KindTest:
		e.WriteLine(fmt.Sprintf("Time    : %s", ts))
		if doc.PrinterName != "" {
			e.WriteLine(fmt.Sprintf("Printer : %s", doc.PrinterName))
		}
		e.WriteLine("Status  : OK")
		e.LineFeed()

		e.SetAlignment(AlignCenter)
		e.SetBold(true)
		e.WriteLine("Test succeeded!")
		e.SetBold(false)
	}

	e.Feed(3)
	e.Cut()

	return e.GetBytes(), nil
}
