package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/platform/config"
)

const driverName = "mysql"

// DSN builds the driver connection string. Times are read and written in UTC.
func DSN(c config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second
	mc.MultiStatements = false
	return mc.FormatDSN()
}

func Connect(ctx context.Context, c config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, DSN(c))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// pool sizes must stay below the server's max_connections
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
