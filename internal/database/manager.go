package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "nexa/pkg/database"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

var _ interfaces.DatabaseManager = (*Manager)(nil)

// Manager implements interfaces.DatabaseManager on SQLite. Reads go straight
// to the pool; every write is serialized through one writer goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	retryDelay   time.Duration
	writeTimeout time.Duration
	writeChannel chan writeOperation
	shutdown     chan struct{}
	done         chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation is one unit of work for the writer goroutine. afterCommit
// runs on the writer goroutine only when operation succeeded.
type writeOperation struct {
	operation   func(*sql.DB) error
	afterCommit func()
	result      chan error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the writer goroutine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRetryDelay sets the pause before a failed write is retried once.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager opens the database and starts the writer goroutine.
// Migrations are applied separately through pkg/database.
func NewManager(config *dbconfig.Config, opts ...Option) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       slog.Default(),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(manager)
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.done)

	for {
		select {
		case op := <-m.writeChannel:
			m.runWrite(op)

		case <-m.shutdown:
			// Fail whatever is still queued so no caller waits forever
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- ErrManagerClosed
				default:
					m.logger.Info("database write loop shutting down")
					return
				}
			}
		}
	}
}

func (m *Manager) runWrite(op writeOperation) {
	err := op.operation(m.db)
	if err != nil && retryable(err) {
		m.logger.Warn("database write failed, retrying", "error", err, "delay", m.retryDelay)
		select {
		case <-time.After(m.retryDelay):
			err = op.operation(m.db)
		case <-m.shutdown:
		}
		if err != nil {
			m.logger.Error("database write failed after retry", "error", err)
		}
	}

	if err == nil && op.afterCommit != nil {
		op.afterCommit()
	}
	op.result <- err
}

// retryable reports whether a second attempt could succeed. Constraint
// violations and cancelled contexts fail the same way every time.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, types.ErrNotFound) {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return false
	}
	return true
}

// executeWrite queues a write and waits for its outcome. Failures are
// classified as types.ErrPersistence unless they already carry a kind.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error, afterCommit func()) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	op := writeOperation{operation: operation, afterCommit: afterCommit, result: result}

	select {
	case m.writeChannel <- op:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", types.ErrPersistence, ctx.Err())
	case <-time.After(m.writeTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	var err error
	select {
	case err = <-result:
	case <-m.done:
		select {
		case err = <-result:
		default:
			err = ErrManagerClosed
		}
	}

	if err == nil || errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrPersistence, err)
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
