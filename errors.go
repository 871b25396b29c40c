package pgwire

import (
	"fmt"

	"github.com/pgwireclient/pgwire/internal/protocol"
	"github.com/pgwireclient/pgwire/internal/types"
)

// ConnectionError reports a transport, TLS, or startup failure; the
// underlying Connection is always terminated (spec.md §7).
type ConnectionError = protocol.ConnectionError

// ProtocolError reports an unexpected message tag or a truncated frame;
// the underlying Connection is always terminated (spec.md §7).
type ProtocolError = protocol.ProtocolError

// PostgresError reports a backend ErrorResponse. The connection remains
// usable: the engine has already drained to the next ReadyForQuery.
type PostgresError = protocol.PostgresError

// DecodeError reports that a column payload could not be converted to
// its declared type's native representation.
type DecodeError = types.DecodeError

// EncodeError reports that a query argument could not be encoded.
type EncodeError = types.EncodeError

// ConfigError reports an invalid ConnectionConfig, connection string, or
// environment variable combination.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "pgwire: config error: " + e.Reason }

// SessionLockedError is raised when a query is attempted on a session
// whose current_transaction is non-nil: every query on a locked session
// must go through the owning Transaction (spec.md §4.8).
type SessionLockedError struct {
	TransactionName string
}

func (e *SessionLockedError) Error() string {
	return fmt.Sprintf("pgwire: session locked by transaction %q", e.TransactionName)
}

// TransactionError wraps a PostgresError (or other query failure) raised
// while a Transaction was open. The transaction is forcibly committed to
// release the backend before this error is returned (spec.md §4.9).
type TransactionError struct {
	TransactionName string
	Err             error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("pgwire: transaction %q failed: %v", e.TransactionName, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ResultShapeError reports an explicit field-count mismatch or duplicate
// column names when materializing an object-mode QueryResult.
type ResultShapeError struct {
	Reason string
}

func (e *ResultShapeError) Error() string { return "pgwire: result shape error: " + e.Reason }

// PoolClosedError is returned by End or Close on a pool that is already
// ended. A subsequent Connect does not return it; it transparently
// reinitializes the pool.
type PoolClosedError struct{}

func (e *PoolClosedError) Error() string { return "pgwire: pool is closed" }
