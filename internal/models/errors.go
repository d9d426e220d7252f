package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPoolExhausted       = errors.New("address pool exhausted")
	ErrServerNotConfigured = errors.New("wireguard server not configured")
	ErrConstraintViolation = errors.New("constraint violation")

	// ошибки внешних команд
	ErrKeyGeneration        = errors.New("key generation failed")
	ErrInterfaceCommand     = errors.New("interface command failed")
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")
)

// ErrMalformedListing: вывод wg не соответствует схеме листинга. Частный случай недоступной телеметрии.
var ErrMalformedListing = fmt.Errorf("malformed interface listing: %w", ErrTelemetryUnavailable)
