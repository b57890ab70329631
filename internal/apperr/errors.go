// Package apperr defines the error taxonomy shared by all Tessera components.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on.
var (
	ErrNoteNotFound         = errors.New("note not found")
	ErrMosaicNotInitialized = errors.New("mosaic not initialized")
	ErrConflict             = errors.New("conflict")
	ErrAlreadyExists        = errors.New("already exists")
)

// FileOpError wraps a file-system failure with the attempted operation.
type FileOpError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileOpError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("file operation %s failed for %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("file operation %s failed: %v", e.Op, e.Err)
}

func (e *FileOpError) Unwrap() error { return e.Err }

// FileOp builds a FileOpError.
func FileOp(op, path string, err error) error {
	return &FileOpError{Op: op, Path: path, Err: err}
}

// ParseError reports malformed input that could not be turned into a model.
type ParseError struct {
	Format  string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

// Parse builds a ParseError.
func Parse(format, message string) error {
	return &ParseError{Format: format, Message: message}
}

// AttachmentError reports a size or copy failure while handling attachments.
type AttachmentError struct {
	Message string
}

func (e *AttachmentError) Error() string {
	return "attachment error: " + e.Message
}

// Attachment builds an AttachmentError.
func Attachment(format string, args ...any) error {
	return &AttachmentError{Message: fmt.Sprintf(format, args...)}
}

// DatabaseError wraps an underlying engine error with operation context.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Database builds a DatabaseError.
func Database(op string, err error) error {
	return &DatabaseError{Op: op, Err: err}
}

// IndexError reports an indexing failure for a specific path.
type IndexError struct {
	Path string
	Err  error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index: %s: %v", e.Path, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Index builds an IndexError.
func Index(path string, err error) error {
	return &IndexError{Path: path, Err: err}
}

// SearchError reports an invalid or failed search.
type SearchError struct {
	Message string
}

func (e *SearchError) Error() string {
	return "search error: " + e.Message
}

// Search builds a SearchError.
func Search(message string) error {
	return &SearchError{Message: message}
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// Validation builds a ValidationError.
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError reports a configuration problem.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// Config builds a ConfigError.
func Config(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a missing-note or missing-mosaic condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoteNotFound) || errors.Is(err, ErrMosaicNotInitialized)
}
