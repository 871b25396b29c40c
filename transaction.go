package pgwire

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// IsolationLevel mirrors spec.md §3's isolation_level enum.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	Serializable
)

func (l IsolationLevel) sql() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// TransactionOptions configures Transaction.Begin.
type TransactionOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
	Snapshot  string // optional; "" means none
}

var savepointNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

type txState int

const (
	txCreated txState = iota
	txOpen
	txEnded
)

// Transaction is a client-side state machine serializing queries against
// a single Session and tracking a stack of named savepoints (spec.md
// §4.9). Not safe for concurrent use.
type Transaction struct {
	session *Session
	name    string
	opts    TransactionOptions

	state      txState
	savepoints []*Savepoint
	committed  bool
}

// Savepoint is one entry of a Transaction's savepoint stack (spec.md
// §3/§9): a lowercased name with an instance count tracking nested
// SAVEPOINT re-issues of the same name.
type Savepoint struct {
	tx            *Transaction
	name          string
	instanceCount int
}

// Name returns the savepoint's (lowercased) name.
func (sp *Savepoint) Name() string { return sp.name }

// InstanceCount returns the current nesting count.
func (sp *Savepoint) InstanceCount() int { return sp.instanceCount }

// Name returns the transaction's name.
func (t *Transaction) Name() string { return t.name }

// Begin issues BEGIN [READ ONLY|READ WRITE] ISOLATION LEVEL <level>,
// optionally followed by SET TRANSACTION SNAPSHOT, and locks the
// session. Requires the session currently holds no transaction and this
// Transaction is in its created state.
func (t *Transaction) Begin(ctx context.Context) error {
	if t.state != txCreated {
		return &ConfigError{Reason: fmt.Sprintf("transaction %q already begun", t.name)}
	}
	if cur := t.session.CurrentTransaction(); cur != "" {
		return &SessionLockedError{TransactionName: cur}
	}

	access := "READ WRITE"
	if t.opts.ReadOnly {
		access = "READ ONLY"
	}
	sql := fmt.Sprintf("BEGIN %s ISOLATION LEVEL %s;", access, t.opts.Isolation.sql())

	if _, err := t.session.runLocked(ctx, NewQuery(sql)); err != nil {
		return t.wrapError(ctx, err)
	}
	t.session.lock(t.name)
	t.state = txOpen

	if t.opts.Snapshot != "" {
		snapSQL := fmt.Sprintf("SET TRANSACTION SNAPSHOT '%s';", t.opts.Snapshot)
		if _, err := t.session.runLocked(ctx, NewQuery(snapSQL)); err != nil {
			return t.wrapError(ctx, err)
		}
	}
	return nil
}

// Query issues q against the locked session on behalf of this
// transaction.
func (t *Transaction) Query(ctx context.Context, q Query) (*QueryResult, error) {
	if t.state != txOpen {
		return nil, &ConfigError{Reason: fmt.Sprintf("transaction %q is not open", t.name)}
	}
	res, err := t.session.runLocked(ctx, q)
	if err != nil {
		return nil, t.wrapError(ctx, err)
	}
	return res, nil
}

// Commit issues COMMIT [AND CHAIN]. Unless chain is true, the session is
// unlocked and the savepoint stack is cleared.
func (t *Transaction) Commit(ctx context.Context, chain bool) error {
	if t.state != txOpen {
		return &ConfigError{Reason: fmt.Sprintf("transaction %q is not open", t.name)}
	}
	sql := "COMMIT "
	if chain {
		sql += "AND CHAIN"
	}
	if _, err := t.session.runLocked(ctx, NewQuery(sql)); err != nil {
		return t.wrapError(ctx, err)
	}
	t.committed = true
	if !chain {
		t.session.unlock()
		t.savepoints = nil
		t.state = txEnded
	}
	return nil
}

// RollbackOptions configures Transaction.Rollback. Savepoint and Chain
// are mutually exclusive (spec.md §4.9).
type RollbackOptions struct {
	Savepoint string
	Chain     bool
}

// Rollback issues ROLLBACK TO <savepoint> (when Savepoint is set,
// requiring that savepoint exist with a positive instance count and
// leaving the session locked) or ROLLBACK [AND CHAIN] (unlocking the
// session iff Chain is false).
func (t *Transaction) Rollback(ctx context.Context, opts RollbackOptions) error {
	if t.state != txOpen {
		return &ConfigError{Reason: fmt.Sprintf("transaction %q is not open", t.name)}
	}
	if opts.Savepoint != "" && opts.Chain {
		return &ConfigError{Reason: "rollback savepoint and chain are mutually exclusive"}
	}

	if opts.Savepoint != "" {
		sp := t.findSavepoint(opts.Savepoint)
		if sp == nil || sp.instanceCount <= 0 {
			return &ConfigError{Reason: fmt.Sprintf("no active savepoint %q", opts.Savepoint)}
		}
		sql := fmt.Sprintf("ROLLBACK TO %s;", sp.name)
		if _, err := t.session.runLocked(ctx, NewQuery(sql)); err != nil {
			return t.wrapError(ctx, err)
		}
		return nil
	}

	sql := "ROLLBACK "
	if opts.Chain {
		sql += "AND CHAIN"
	}
	if _, err := t.session.runLocked(ctx, NewQuery(sql)); err != nil {
		return t.wrapError(ctx, err)
	}
	if !opts.Chain {
		t.session.unlock()
		t.savepoints = nil
		t.state = txEnded
	}
	return nil
}

// Savepoint creates (or, if name already exists case-insensitively,
// re-issues) a named savepoint, incrementing its instance count.
func (t *Transaction) Savepoint(ctx context.Context, name string) (*Savepoint, error) {
	if !savepointNameRE.MatchString(name) {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid savepoint name %q", name)}
	}
	lower := strings.ToLower(name)
	sql := fmt.Sprintf("SAVEPOINT %s;", lower)
	if _, err := t.Query(ctx, NewQuery(sql)); err != nil {
		return nil, err
	}
	if sp := t.findSavepoint(lower); sp != nil {
		sp.instanceCount++
		return sp, nil
	}
	sp := &Savepoint{tx: t, name: lower, instanceCount: 1}
	t.savepoints = append(t.savepoints, sp)
	return sp, nil
}

// Release issues RELEASE SAVEPOINT <name> and decrements the instance
// count. Requires instance_count > 0.
func (sp *Savepoint) Release(ctx context.Context) error {
	if sp.instanceCount <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("savepoint %q has no outstanding instances", sp.name)}
	}
	sql := fmt.Sprintf("RELEASE SAVEPOINT %s;", sp.name)
	if _, err := sp.tx.Query(ctx, NewQuery(sql)); err != nil {
		return err
	}
	sp.instanceCount--
	return nil
}

func (t *Transaction) findSavepoint(name string) *Savepoint {
	lower := strings.ToLower(name)
	for _, sp := range t.savepoints {
		if sp.name == lower {
			return sp
		}
	}
	return nil
}

// GetSnapshot runs SELECT PG_EXPORT_SNAPSHOT() and returns the textual
// snapshot id, usable by another Transaction's Begin(opts.Snapshot).
func (t *Transaction) GetSnapshot(ctx context.Context) (string, error) {
	res, err := t.Query(ctx, NewQuery("SELECT PG_EXPORT_SNAPSHOT()"))
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return "", &ResultShapeError{Reason: "PG_EXPORT_SNAPSHOT() returned no rows"}
	}
	s, _ := res.Rows[0][0].(string)
	return s, nil
}

// wrapError implements spec.md §4.9/§7: any query failure while open
// wraps into TransactionError and forces a COMMIT over the wire to
// release the backend (a COMMIT issued against a backend already in
// Postgres's aborted-transaction state performs an implicit ROLLBACK,
// so this is safe regardless of which query failed). Validation errors
// raised before any SQL is sent (state checks above) bypass wrapError
// and are returned directly. The forced COMMIT's own error is ignored:
// if the backend connection is actually dead, runLocked's underlying
// Connection has already poisoned itself and Session.Healthy will
// report it; the original failure is what the caller needs to see.
func (t *Transaction) wrapError(ctx context.Context, err error) error {
	if t.state != txOpen {
		return err
	}
	txErr := &TransactionError{TransactionName: t.name, Err: err}
	t.session.runLocked(ctx, NewQuery("COMMIT "))
	t.session.unlock()
	t.savepoints = nil
	t.state = txEnded
	return txErr
}
