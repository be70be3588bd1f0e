package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Environment variables controlling the two inputs.
const (
	EnvServerPath = "EXCEL_MCP_SERVER_PATH"
	EnvWorkbook   = "EXCEL_MCP_WORKBOOK"
)

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing input file and the variable that controls
// its location.
type NotFoundError struct {
	// Input is a human name for the missing file.
	Input string
	Path  string
	// EnvVar is the variable the user should set.
	EnvVar string
	// Override is true when Path came from EnvVar rather than a default.
	Override bool
	// Hint describes what EnvVar should point to.
	Hint string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Path == "":
		return fmt.Sprintf("%s not found. Set %s to %s.", e.Input, e.EnvVar, e.Hint)
	case e.Override:
		return fmt.Sprintf("%s not found at %s (from %s). Set %s to %s.", e.Input, e.Path, e.EnvVar, e.EnvVar, e.Hint)
	default:
		return fmt.Sprintf("%s not found at default path %s. Set %s to %s.", e.Input, e.Path, e.EnvVar, e.Hint)
	}
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DefaultServerPath is where a Release publish of the Excel server lands,
// relative to the working directory, made absolute.
func DefaultServerPath() (string, error) {
	name := "ExcelMcp.Server"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Abs(filepath.Join("src", "ExcelMcp.Server", "bin", "Release", "net9.0", name))
}

// ResolveServerPath returns the Excel server executable. EXCEL_MCP_SERVER_PATH
// wins when set to a non-empty value and is returned unchanged; otherwise the
// default build output is used.
func ResolveServerPath() (string, error) {
	path, override := os.Getenv(EnvServerPath), true
	if path == "" {
		def, err := DefaultServerPath()
		if err != nil {
			return "", fmt.Errorf("resolve default server path: %w", err)
		}
		path, override = def, false
	}
	if !exists(path) {
		return "", &NotFoundError{
			Input:    "Excel MCP server executable",
			Path:     path,
			EnvVar:   EnvServerPath,
			Override: override,
			Hint:     "the published server executable",
		}
	}
	return path, nil
}

// ResolveWorkbookPath returns the workbook named by EXCEL_MCP_WORKBOOK. There
// is no default: an unset or empty variable is reported as not found.
func ResolveWorkbookPath() (string, error) {
	path := os.Getenv(EnvWorkbook)
	if path == "" || !exists(path) {
		return "", &NotFoundError{
			Input:    "Workbook",
			Path:     path,
			EnvVar:   EnvWorkbook,
			Override: path != "",
			Hint:     "the .xlsx file you want to inspect",
		}
	}
	return path, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
