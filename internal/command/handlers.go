package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/controller"
	"github.com/thereceipt/printcounter/internal/history"
)

// handleIncrement handles inc
func (e *Executor) handleIncrement(args []string) *Result {
	if err := e.ctrl.Increment(); err != nil {
		return failure(err)
	}
	return e.stateResult("Count incremented")
}

// handleReset handles reset
func (e *Executor) handleReset(args []string) *Result {
	if err := e.ctrl.Reset(); err != nil {
		return failure(err)
	}
	return e.stateResult("Count reset")
}

// handlePrint prints the current count
func (e *Executor) handlePrint(ctx context.Context, args []string) *Result {
	if err := e.ctrl.PrintNow(ctx); err != nil {
		return failure(err)
	}
	snap := e.ctrl.Snapshot()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Printed order #%d with count %d", snap.LastOrderNumber, snap.Count),
		Data:    snapshotData(snap),
	}
}

// handleTest prints a test receipt
func (e *Executor) handleTest(ctx context.Context, args []string) *Result {
	if err := e.ctrl.TestPrint(ctx); err != nil {
		return failure(err)
	}
	return e.stateResult("Test receipt printed")
}

// handleAuto handles auto mode
// Usage: auto start [max-count] [interval-seconds] | auto stop
func (e *Executor) handleAuto(args []string) *Result {
	const text = "auto start [max-count] [interval-seconds] | auto stop"
	if len(args) == 0 {
		return usage(text)
	}

	switch args[0] {
	case "start":
		cfg := e.ctrl.Config()
		maxCount := cfg.AutoMaxCount
		interval := cfg.AutoInterval

		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return usage(text)
			}
			maxCount = n
		}
		if len(args) > 2 {
			f, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return usage(text)
			}
			interval = f
		}

		if err := e.ctrl.StartAuto(maxCount, config.SecondsToDuration(interval)); err != nil {
			return failure(err)
		}
		return e.stateResult(fmt.Sprintf("Auto mode started: %d steps every %gs", maxCount, interval))

	case "stop":
		if err := e.ctrl.StopAuto(); err != nil {
			return failure(err)
		}
		return e.stateResult("Auto mode stopped")

	default:
		return usage(text)
	}
}

// handleStatus reports the current snapshot
func (e *Executor) handleStatus(args []string) *Result {
	snap := e.ctrl.Snapshot()

	msg := fmt.Sprintf("Count %d, mode %s, printer %s", snap.Count, snap.Mode, snap.Presence())
	if snap.Mode == controller.ModeAutoRunning {
		msg += fmt.Sprintf(", auto %d/%d", snap.AutoProgress.Current, snap.AutoProgress.Max)
	}
	if snap.LastError != controller.KindNone {
		msg += fmt.Sprintf(", last error %s", snap.LastError)
	}

	return &Result{
		Success: true,
		Message: msg,
		Data:    snapshotData(snap),
	}
}

// handleSettings shows or updates printer settings
// Usage: settings [key=value ...]
func (e *Executor) handleSettings(args []string) *Result {
	cfg := e.ctrl.Config()

	if len(args) == 0 {
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Printer %s:%s interface %d, auto %d every %gs",
				cfg.VendorID, cfg.ProductID, cfg.Interface, cfg.AutoMaxCount, cfg.AutoInterval),
			Data: configData(cfg),
		}
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return usage("settings [vendor_id=0x0fe6] [product_id=0x811e] [interface=0] [auto_max_count=10] [auto_interval=1.0] [serial_device=/dev/ttyUSB0]")
		}
		if err := applySetting(&cfg, key, value); err != nil {
			return failure(err)
		}
	}

	if err := e.ctrl.UpdateSettings(cfg); err != nil {
		return failure(err)
	}

	cfg = e.ctrl.Config()
	return &Result{
		Success: true,
		Message: "Settings saved",
		Data:    configData(cfg),
	}
}

func applySetting(cfg *config.Config, key, value string) error {
	switch key {
	case "vendor_id":
		cfg.VendorID = value
	case "product_id":
		cfg.ProductID = value
	case "serial_device":
		cfg.SerialDevice = value
	case "interface":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: interface must be an integer", config.ErrInvalidConfig)
		}
		cfg.Interface = n
	case "auto_max_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: auto_max_count must be an integer", config.ErrInvalidConfig)
		}
		cfg.AutoMaxCount = n
	case "auto_interval":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: auto_interval must be a number", config.ErrInvalidConfig)
		}
		cfg.AutoInterval = f
	default:
		return fmt.Errorf("%w: unknown setting %q", config.ErrInvalidConfig, key)
	}
	return nil
}

// handleOrders handles order number commands
// Usage: orders clear
func (e *Executor) handleOrders(ctx context.Context, args []string) *Result {
	if len(args) != 1 || args[0] != "clear" {
		return usage("orders clear")
	}
	if err := e.ctrl.ClearOrderNumber(ctx); err != nil {
		return failure(err)
	}
	return e.stateResult("Order number cleared, next receipt is #1")
}

// handleHistory lists recent prints
// Usage: history [limit]
func (e *Executor) handleHistory(ctx context.Context, args []string) *Result {
	if e.history == nil {
		return &Result{Success: false, Error: "print history is not available"}
	}

	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return usage("history [limit]")
		}
		limit = n
	}

	entries, err := e.history.List(ctx, limit)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to read history: %v", err)}
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, formatEntry(entry))
	}

	return &Result{
		Success: true,
		Message: strings.Join(lines, "\n"),
		Data: map[string]interface{}{
			"entries": entries,
			"count":   len(entries),
		},
	}
}

func formatEntry(e history.Entry) string {
	line := fmt.Sprintf("%s  %-5s", e.PrintedAt.Local().Format("2006-01-02 15:04:05"), e.Kind)
	if e.OrderNumber > 0 {
		line += fmt.Sprintf("  #%d", e.OrderNumber)
	}
	line += fmt.Sprintf("  count %d  %s", e.Count, e.Status)
	if e.ErrorKind != "" {
		line += " (" + e.ErrorKind + ")"
	}
	return line
}

// handleDetect checks printer presence now
func (e *Executor) handleDetect(ctx context.Context, args []string) *Result {
	present, err := e.ctrl.PollPresence(ctx)
	if err != nil {
		return failure(err)
	}

	msg := "Printer not connected"
	if present {
		msg = "Printer connected"
	}
	return &Result{
		Success: true,
		Message: msg,
		Data: map[string]interface{}{
			"present": present,
		},
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  inc
    Add one to the counter

  reset
    Set the counter to zero

  print
    Print the current count with the next order number

  test
    Print a test receipt

  auto start [max-count] [interval-seconds]
    Count automatically and print when max-count is reached

  auto stop
    Stop auto mode, keeping the count

  status
    Show count, mode and printer presence

  settings [key=value ...]
    Show or change printer settings

  orders clear
    Restart order numbers at 1

  history [limit]
    Show recent prints

  detect
    Check whether the printer is connected

  help
    Show this help message

Examples:
  auto start 10 1.5
  settings vendor_id=0x04b8 product_id=0x0e15
  history 20
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

func (e *Executor) stateResult(msg string) *Result {
	return &Result{
		Success: true,
		Message: msg,
		Data:    snapshotData(e.ctrl.Snapshot()),
	}
}

func snapshotData(s controller.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"count":             s.Count,
		"mode":              s.Mode,
		"busy":              s.Busy,
		"printer":           s.Presence(),
		"auto_progress":     s.AutoProgress,
		"last_order_number": s.LastOrderNumber,
		"last_error":        s.LastError,
	}
}

func configData(cfg config.Config) map[string]interface{} {
	return map[string]interface{}{
		"vendor_id":      cfg.VendorID,
		"product_id":     cfg.ProductID,
		"interface":      cfg.Interface,
		"auto_max_count": cfg.AutoMaxCount,
		"auto_interval":  cfg.AutoInterval,
		"serial_device":  cfg.SerialDevice,
	}
}
