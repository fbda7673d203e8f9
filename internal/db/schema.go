package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    display_name  TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    picture_url   TEXT NOT NULL DEFAULT '',
    picture       BLOB,
    picture_mime  TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

-- One row per unordered pair: user_a < user_b.
CREATE TABLE IF NOT EXISTS friendships (
    user_a       INTEGER NOT NULL REFERENCES users(id),
    user_b       INTEGER NOT NULL REFERENCES users(id),
    requested_by INTEGER NOT NULL REFERENCES users(id),
    status       TEXT NOT NULL CHECK (status IN ('requested', 'friends')),
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_a, user_b),
    CHECK (user_a < user_b)
);

CREATE TABLE IF NOT EXISTS books (
    id          INTEGER PRIMARY KEY,
    owner_id    INTEGER NOT NULL REFERENCES users(id),
    title       TEXT NOT NULL,
    author      TEXT NOT NULL DEFAULT '',
    isbn        TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    visibility  TEXT NOT NULL DEFAULT 'public' CHECK (visibility IN ('public', 'private')),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS book_categories (
    book_id  INTEGER NOT NULL REFERENCES books(id),
    category TEXT NOT NULL,
    PRIMARY KEY (book_id, category)
);

CREATE TABLE IF NOT EXISTS loans (
    id              INTEGER PRIMARY KEY,
    book_id         INTEGER NOT NULL REFERENCES books(id),
    owner_id        INTEGER NOT NULL REFERENCES users(id),
    requester_id    INTEGER NOT NULL REFERENCES users(id),
    status          TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'loaned', 'late', 'returned', 'cancelled')),
    request_date    DATETIME NOT NULL,
    accept_date     DATETIME,
    loan_start_date DATETIME,
    loan_end_date   DATETIME,
    return_date     DATETIME,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- At most one active loan per book.
CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_book
    ON loans(book_id) WHERE status IN ('pending', 'accepted', 'loaned', 'late');

CREATE INDEX IF NOT EXISTS idx_loans_requester ON loans(requester_id);
CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
