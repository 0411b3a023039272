package model

import "fmt"

// Error taxonomy. One struct per kind, matching the closed set the core
// commits to: the HTTP boundary maps each to a status code, nothing else
// invents new kinds at runtime.

// ConfigurationError covers missing/invalid schema, unknown operators,
// unknown orderBy columns, and mismatched primary-key lengths.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError covers an unresolvable primary key or a missing binary uid.
type NotFoundError struct {
	Table string
	Key   string
}

func (e *NotFoundError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("not found: %s", e.Key)
	}
	return fmt.Sprintf("%s: no row with key %s", e.Table, e.Key)
}

func NewNotFoundError(table, key string) *NotFoundError {
	return &NotFoundError{Table: table, Key: key}
}

// ConflictError marks a sync apply that could not be reconciled automatically
// and was instead recorded to SyncLog with status=error.
type ConflictError struct {
	Table  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Table, e.Reason)
}

func NewConflictError(table, reason string) *ConflictError {
	return &ConflictError{Table: table, Reason: reason}
}

// TimeoutError marks a transaction that exceeded its timeout; the
// transaction is rolled back before this error reaches the caller.
type TimeoutError struct {
	Operation string
	Timeout   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

func NewTimeoutError(operation, timeout string) *TimeoutError {
	return &TimeoutError{Operation: operation, Timeout: timeout}
}

// BackendError wraps a propagated SQL error from the underlying backend.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func NewBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

// TransportError covers malformed multipart bodies and missing required
// fields at the HTTP boundary.
type TransportError struct {
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", e.Reason)
}

func NewTransportError(format string, args ...interface{}) *TransportError {
	return &TransportError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError covers no session, insufficient rights, or an unknown realm.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func NewAuthError(format string, args ...interface{}) *AuthError {
	return &AuthError{Reason: fmt.Sprintf(format, args...)}
}
