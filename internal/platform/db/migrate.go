package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order on every start; each statement is idempotent.
//
// borrows.active_marker is 1 while a borrow is open and NULL afterwards. MySQL has
// no partial indexes, and NULLs never collide in a UNIQUE index, so
// uq_borrows_active allows at most one open borrow per (user_id, book_id).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(26)     NOT NULL,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('user','admin') NOT NULL DEFAULT 'user',
		created_at    DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS books (
		id               CHAR(26)     NOT NULL,
		title            VARCHAR(512) NOT NULL,
		author           VARCHAR(255) NOT NULL,
		genre            VARCHAR(128) NULL,
		total_copies     INT          NOT NULL,
		available_copies INT          NOT NULL,
		version          BIGINT       NOT NULL DEFAULT 0,
		created_at       DATETIME(6)  NOT NULL,
		updated_at       DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		CONSTRAINT chk_books_copies CHECK (total_copies >= 0 AND available_copies >= 0 AND available_copies <= total_copies)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS borrows (
		id            CHAR(26)    NOT NULL,
		user_id       CHAR(26)    NOT NULL,
		book_id       CHAR(26)    NOT NULL,
		borrow_date   DATETIME(6) NOT NULL,
		return_date   DATETIME(6) NULL,
		status        ENUM('borrowed','returned') NOT NULL DEFAULT 'borrowed',
		active_marker TINYINT AS (IF(status = 'borrowed', 1, NULL)) STORED,
		version       BIGINT      NOT NULL DEFAULT 0,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_borrows_active (user_id, book_id, active_marker),
		KEY idx_borrows_user_date (user_id, borrow_date),
		KEY idx_borrows_date (borrow_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
