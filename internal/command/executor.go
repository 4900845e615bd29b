// Package command runs text commands against the counting controller
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/printcounter/internal/controller"
	"github.com/thereceipt/printcounter/internal/history"
)

// HistoryLister lists recent print attempts
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Executor executes commands
type Executor struct {
	ctrl    *controller.Controller
	history HistoryLister
}

// NewExecutor creates a new command executor. history may be nil.
func NewExecutor(ctrl *controller.Controller, history HistoryLister) *Executor {
	return &Executor{
		ctrl:    ctrl,
		history: history,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Kind    controller.ErrorKind   `json:"kind,omitempty"`
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return &Result{
			Success: false,
			Error:   "empty command",
		}
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "inc", "increment", "+":
		return e.handleIncrement(args)
	case "reset":
		return e.handleReset(args)
	case "print":
		return e.handlePrint(ctx, args)
	case "test":
		return e.handleTest(ctx, args)
	case "auto":
		return e.handleAuto(args)
	case "status":
		return e.handleStatus(args)
	case "settings":
		return e.handleSettings(args)
	case "orders":
		return e.handleOrders(ctx, args)
	case "history":
		return e.handleHistory(ctx, args)
	case "detect":
		return e.handleDetect(ctx, args)
	case "help":
		return e.handleHelp(args)
	default:
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command),
		}
	}
}

// failure turns a controller error into a result
func failure(err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
		Kind:    controller.KindOf(err),
	}
}

// usage reports a malformed command
func usage(text string) *Result {
	return &Result{
		Success: false,
		Error:   "usage: " + text,
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if (char == ' ' || char == '\t') && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
