package controller

import (
	"errors"

	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/printer"
)

// ErrInvalidOperation is returned for commands the current state does not
// allow. State is left unchanged.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrHistory marks a print that succeeded but could not be recorded
var ErrHistory = errors.New("print history unavailable")

// ErrorKind names a failure class as shown to the presentation layer
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidConfig      ErrorKind = "InvalidConfig"
	KindInvalidOperation   ErrorKind = "InvalidOperation"
	KindDeviceNotFound     ErrorKind = "DeviceNotFound"
	KindPermissionDenied   ErrorKind = "PermissionDenied"
	KindDeviceBusy         ErrorKind = "DeviceBusy"
	KindTransmissionError  ErrorKind = "TransmissionError"
	KindMonitorUnavailable ErrorKind = "MonitorUnavailable"
	KindHistoryUnavailable ErrorKind = "HistoryUnavailable"
	KindUnknown            ErrorKind = "Unknown"
)

// KindOf classifies err
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, config.ErrInvalidConfig):
		return KindInvalidConfig
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, printer.ErrDeviceNotFound):
		return KindDeviceNotFound
	case errors.Is(err, printer.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, printer.ErrDeviceBusy):
		return KindDeviceBusy
	case errors.Is(err, printer.ErrTransmission):
		return KindTransmissionError
	case errors.Is(err, printer.ErrMonitorUnavailable):
		return KindMonitorUnavailable
	case errors.Is(err, ErrHistory):
		return KindHistoryUnavailable
	default:
		return KindUnknown
	}
}

// IsPrinterError reports whether err came from printer I/O
func IsPrinterError(err error) bool {
	switch KindOf(err) {
	case KindDeviceNotFound, KindPermissionDenied, KindDeviceBusy, KindTransmissionError:
		return true
	}
	return false
}
