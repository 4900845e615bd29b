package printer

import (
	"bytes"
	"testing"
	"time"

	"github.com/thereceipt/printcounter/internal/receipt"
)

func TestEncodeDocument_CountReceipt(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	doc := receipt.NewCount(42, 3, at)

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	if !bytes.HasPrefix(data, []byte{ESC, '@'}) {
		t.Error("Expected receipt to start with initialize command")
	}
	if !bytes.HasSuffix(data, []byte{GS, 'V', 0}) {
		t.Error("Expected receipt to end with full cut command")
	}

	for _, want := range []string{receipt.CountLabel, "#42", "COUNT: 3", "05-03-2024 14:07:09"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("Expected receipt to contain %q", want)
		}
	}

	// Count line is printed double size
	if !bytes.Contains(data, []byte{GS, '!', 0x11}) {
		t.Error("Expected double size text command")
	}
}

func TestEncodeDocument_TestReceipt(t *testing.T) {
	doc := receipt.NewTest("USB 0x0fe6:0x811e", time.Now())

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	if !bytes.Contains(data, []byte(receipt.TestLabel)) {
		t.Error("Expected test label")
	}
	if !bytes.Contains(data, []byte("USB 0x0fe6:0x811e")) {
		t.Error("Expected printer name")
	}
	if bytes.Contains(data, []byte("Order")) {
		t.Error("Test receipt must not carry an order number")
	}
}

func TestEncodeDocument_Invalid(t *testing.T) {
	if _, err := EncodeDocument(receipt.Document{}); err == nil {
		t.Error("Expected error for empty document")
	}
}

func TestSetTextSize_Clamps(t *testing.T) {
	e := NewESCPOSEncoder()
	e.SetTextSize(0, 12)

	want := []byte{GS, '!', 0x07}
	if !bytes.Equal(e.GetBytes(), want) {
		t.Errorf("Expected %v, got %v", want, e.GetBytes())
	}
}
