package pgwire

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/pgwireclient/pgwire/internal/protocol"
)

// Session (QueryClient) owns one Connection and serializes queries
// against it. A non-nil current_transaction locks the session: direct
// query calls are refused until the owning Transaction releases the
// lock (spec.md §4.8).
type Session struct {
	conn   *protocol.Connection
	cfg    *ConnectionConfig
	mu     sync.Mutex
	txName *string
}

// Connect dials cfg.Host, performs TLS negotiation if configured, and
// drives the startup/authentication handshake through to
// ReadyForQuery, returning a ready Session.
func Connect(ctx context.Context, cfg *ConnectionConfig) (*Session, error) {
	var network, address string
	switch cfg.HostKind {
	case HostSocket:
		network, address = "unix", cfg.Host
	default:
		network, address = "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, &ConnectionError{Reason: "dialing " + address, Err: err}
	}

	var tlsConf *tls.Config
	if cfg.TLS.Enabled {
		tc, err := cfg.TLS.tlsConfig(cfg.Host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		tlsConf = tc
	}

	params := protocol.StartupParams{
		Database:        cfg.Database,
		User:            cfg.User,
		Password:        cfg.Password,
		ApplicationName: cfg.ApplicationName,
		Options:         cfg.Options,
		TLSEnabled:      cfg.TLS.Enabled,
		TLSEnforce:      cfg.TLS.Enforce,
		TLSConfig:       tlsConf,
	}

	pc, err := protocol.Open(ctx, conn, params, cfg.logger())
	if err != nil {
		return nil, err
	}
	return &Session{conn: pc, cfg: cfg}, nil
}

// CurrentTransaction returns the name of the transaction currently
// locking this session, or "" if none.
func (s *Session) CurrentTransaction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txName == nil {
		return ""
	}
	return *s.txName
}

// CreateTransaction returns a new, not-yet-begun Transaction bound to
// this session. opts configures isolation/access mode/snapshot.
func (s *Session) CreateTransaction(name string, opts TransactionOptions) *Transaction {
	return &Transaction{
		session: s,
		name:    name,
		opts:    opts,
	}
}

// QueryArray issues q and materializes rows as []any slices (ResultArray
// mode, overriding whatever mode q was built with).
func (s *Session) QueryArray(ctx context.Context, q Query) (*QueryResult, error) {
	q.ResultMode = ResultArray
	return s.execute(ctx, q)
}

// QueryObject issues q and materializes rows as name→value maps
// (ResultObject mode, overriding whatever mode q was built with unless
// Fields/Camelcase were already set by the caller).
func (s *Session) QueryObject(ctx context.Context, q Query) (*QueryResult, error) {
	if q.ResultMode != ResultObject {
		q = q.WithObjectMode(false)
	}
	return s.execute(ctx, q)
}

func (s *Session) execute(ctx context.Context, q Query) (*QueryResult, error) {
	if tx := s.CurrentTransaction(); tx != "" {
		return nil, &SessionLockedError{TransactionName: tx}
	}
	return s.runLocked(ctx, q)
}

// runLocked performs the actual wire exchange under the session's
// serialization lock, bypassing the SessionLocked check; used directly
// by Transaction once it has taken the lock.
func (s *Session) runLocked(ctx context.Context, q Query) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := q.encodeArgs()
	if err != nil {
		return nil, err
	}

	var outcome *protocol.QueryOutcome
	if len(args) == 0 {
		outcome, err = s.conn.SimpleQuery(ctx, q.Text)
	} else {
		outcome, err = s.conn.ExtendedQuery(ctx, q.Text, args)
	}
	if err != nil {
		return nil, err
	}
	return materializeResult(outcome, q)
}

// lock assigns name as the session's owning transaction; called by
// Transaction.Begin once BEGIN succeeds.
func (s *Session) lock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := name
	s.txName = &n
}

// unlock clears the owning transaction; called by Transaction.Commit /
// Transaction.Rollback (non-chained) and by the forced commit on
// TransactionError.
func (s *Session) unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txName = nil
}

// Close terminates the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Healthy reports whether the underlying connection is still usable.
func (s *Session) Healthy() bool {
	return s.conn.Healthy()
}
