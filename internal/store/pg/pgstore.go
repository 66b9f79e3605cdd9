package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/ids"
)

//go:embed migrations/*.sql seeds/*.sql
var sqlFiles embed.FS

// Migrations returns the schema migrations for this store.
func Migrations() fs.FS { return subdir("migrations") }

// Seeds returns development seed data (the three demo users).
func Seeds() fs.FS { return subdir("seeds") }

func subdir(name string) fs.FS {
	sub, err := fs.Sub(sqlFiles, name)
	if err != nil {
		panic(err)
	}
	return sub
}

type Store struct {
	db *sql.DB
}

var _ chat.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateMessage(ctx context.Context, env chat.Envelope) (chat.StoredMessage, error) {
	if strings.TrimSpace(env.RoomID) == "" || strings.TrimSpace(env.SenderID) == "" {
		return chat.StoredMessage{}, chat.ErrInvalid
	}
	id := ids.New()

	var created time.Time
	err := s.db.QueryRowContext(ctx, `
		insert into messages(id, room_id, encrypted_content, iv, wrapped_key, sender_id, recipient_id)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning created_at
	`, id, env.RoomID, env.EncryptedContent, env.IV, env.WrappedKey, env.SenderID, nullable(env.RecipientID)).Scan(&created)
	if err != nil {
		return chat.StoredMessage{}, fmt.Errorf("%w: insert message: %w", chat.ErrPersistence, err)
	}
	return chat.StoredMessage{Envelope: env, ID: id, CreatedAt: created.UTC()}, nil
}

func (s *Store) ResolveSenderDisplay(ctx context.Context, senderID string) (chat.SenderDisplay, error) {
	var d chat.SenderDisplay
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx, `select username, avatar_url from users where id=$1`, senderID).Scan(&d.Username, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.SenderDisplay{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.SenderDisplay{}, fmt.Errorf("%w: lookup sender: %w", chat.ErrPersistence, err)
	}
	d.AvatarURL = avatar.String
	return d, nil
}

func (s *Store) CreateLogEntry(ctx context.Context, action, details string, typ chat.Severity) (chat.LogEntry, error) {
	if strings.TrimSpace(action) == "" {
		return chat.LogEntry{}, chat.ErrInvalid
	}
	id := ids.New()

	var created time.Time
	err := s.db.QueryRowContext(ctx, `
		insert into system_logs(id, action, details, type)
		values ($1,$2,$3,$4)
		returning created_at
	`, id, action, details, string(typ)).Scan(&created)
	if err != nil {
		return chat.LogEntry{}, fmt.Errorf("%w: insert system log: %w", chat.ErrPersistence, err)
	}
	return chat.LogEntry{ID: id, Action: action, Details: details, Type: typ, CreatedAt: created.UTC()}, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
