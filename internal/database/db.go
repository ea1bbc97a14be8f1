// Package database opens the MySQL pool and applies the schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options describes the MySQL connection. Zero pool fields take defaults.
type Options struct {
	User, Pass string
	Host, Port string
	Name       string

	MaxOpenConns int
	ConnMaxLife  time.Duration
	PingTimeout  time.Duration
}

func (o Options) dsn() string {
	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Pass
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(o.Host, o.Port)
	c.DBName = o.Name
	c.ParseTime = true
	c.Loc = time.UTC
	c.Collation = "utf8mb4_unicode_ci"
	// compare-and-swap updates that rewrite identical values must still
	// count as matched rows
	c.ClientFoundRows = true
	return c.FormatDSN()
}

// Open connects to MySQL, sizes the pool and pings it.
func Open(ctx context.Context, o Options) (*sql.DB, error) {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
	}
	if o.ConnMaxLife <= 0 {
		o.ConnMaxLife = 30 * time.Minute
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}

	db, err := sql.Open("mysql", o.dsn())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxOpenConns)
	db.SetConnMaxLifetime(o.ConnMaxLife)

	pctx, cancel := context.WithTimeout(ctx, o.PingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", net.JoinHostPort(o.Host, o.Port), err)
	}
	log.Printf("database: connected to %s/%s", net.JoinHostPort(o.Host, o.Port), o.Name)
	return db, nil
}
