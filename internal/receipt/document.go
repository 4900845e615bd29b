// Package receipt defines the document printed for each print request
package receipt

import (
	"fmt"
	"time"
)

// Kind identifies the receipt layout
type Kind string

const (
	KindCount Kind = "count" // count report with an order number
	KindTest  Kind = "test"  // printer self-test, no order number
)

// Default labels
const (
	CountLabel = "COUNT REPORT"
	TestLabel  = "TEST PRINT"
)

// Document is an ephemeral receipt built per print request. It is never
// persisted and is discarded after transmission.
type Document struct {
	Kind        Kind      `json:"kind"`
	OrderNumber int64     `json:"order_number,omitempty"`
	Count       int       `json:"count"`
	PrintedAt   time.Time `json:"printed_at"`
	Label       string    `json:"label"`
	PrinterName string    `json:"printer_name,omitempty"` // shown on test prints
}

// NewCount builds a count report
func NewCount(orderNumber int64, count int, at time.Time) Document {
	return Document{
		Kind:        KindCount,
		OrderNumber: orderNumber,
		Count:       count,
		PrintedAt:   at,
		Label:       CountLabel,
	}
}

// NewTest builds a test print for the named printer
func NewTest(printerName string, at time.Time) Document {
	return Document{
		Kind:        KindTest,
		PrintedAt:   at,
		Label:       TestLabel,
		PrinterName: printerName,
	}
}

// Validate checks the document before it is sent to a printer
func (d Document) Validate() error {
	switch d.Kind {
	case KindCount:
		if d.OrderNumber <= 0 {
			return fmt.Errorf("order number must be positive, got %d", d.OrderNumber)
		}
		if d.Count < 0 {
			return fmt.Errorf("count must not be negative, got %d", d.Count)
		}
	case KindTest:
		// ok
	default:
		return fmt.Errorf("unknown receipt kind: %q", d.Kind)
	}

	if d.Label == "" {
		return fmt.Errorf("label is required")
	}
	if d.PrintedAt.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	return nil
}
