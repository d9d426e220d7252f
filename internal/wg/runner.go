// Package wg управляет живым интерфейсом WireGuard через утилиты wg и wg-quick.
package wg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner запускает внешнюю команду и возвращает её stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// CommandError возвращается, когда команда завершилась с ненулевым кодом или не запустилась.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit %d", strings.Join(e.Argv, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner реализует Runner поверх os/exec.
// Запущенная команда доживает до конца даже при отмене ctx запроса.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		ce := &CommandError{
			Argv:     append([]string{name}, args...),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			ce.ExitCode = ee.ExitCode()
		}
		return stdout.Bytes(), ce
	}
	return stdout.Bytes(), nil
}

// Tools содержит пути к утилитам.
type Tools struct {
	WG      string
	WGQuick string
}

func (t Tools) wg() string {
	if t.WG == "" {
		return "wg"
	}
	return t.WG
}

func (t Tools) wgQuick() string {
	if t.WGQuick == "" {
		return "wg-quick"
	}
	return t.WGQuick
}
