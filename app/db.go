package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/config"
)

// IDBConn is the abstract connection every DAO depends on ("~IDBConn").
type IDBConn interface {
	Driver() string
	Roles(ctx context.Context, userID int) ([]string, error)
}

// ErrClosed is returned by queries on a connection that is not open.
var ErrClosed = errors.New("connection is not open")

// seed is the in-memory role table shared by both drivers.
var seed = map[int][]string{
	1: {"admin", "reader"},
	2: {"reader", "writer"},
	3: {"reader"},
}

type conn struct {
	driver string
	dsn    string
	log    *zap.Logger

	mu     sync.Mutex
	open   bool
	closed bool
}

func (c *conn) init(driver string, cfg config.DBConfig, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	c.driver = driver
	c.dsn = fmt.Sprintf("%s://%s:%s", driver, cfg.Host, cfg.Port)
	c.log = log
}

func (c *conn) Driver() string { return c.driver }

// Open is the initializer.
func (c *conn) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.log.Debug("connection opened", zap.String("dsn", c.dsn))
	return nil
}

// Close is the uninitializer.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosed
	}
	c.open, c.closed = false, true
	c.log.Debug("connection closed", zap.String("dsn", c.dsn))
	return nil
}

// Closed reports whether Close has run.
func (c *conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Roles(ctx context.Context, userID int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrClosed
	}
	return append([]string(nil), seed[userID]...), nil
}

// MySQLConn is the "mysql" driver.
type MySQLConn struct{ conn }

func NewMySQLConn(cfg config.DBConfig, log *zap.Logger) *MySQLConn {
	c := &MySQLConn{}
	c.init("mysql", cfg, log)
	return c
}

// PgSQLConn is the "pgsql" driver.
type PgSQLConn struct{ conn }

func NewPgSQLConn(cfg config.DBConfig, log *zap.Logger) *PgSQLConn {
	c := &PgSQLConn{}
	c.init("pgsql", cfg, log)
	return c
}
