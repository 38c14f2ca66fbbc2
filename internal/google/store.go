package google

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoCredential is returned by a TokenStore that holds nothing yet.
var ErrNoCredential = errors.New("no stored credential")

// TokenStore persists a single credential between runs.
type TokenStore interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
}

// DefaultTokenPath returns the XDG data path of the credential file.
func DefaultTokenPath() string {
	return filepath.Join(xdg.DataHome, "calhelper", "token.json")
}

// FileTokenStore keeps the credential as a JSON file.
//
// The file is read and then overwritten without locking, so concurrent
// processes sharing one path may race.
type FileTokenStore struct {
	Path string
}

// NewFileTokenStore creates a file store at path, or at DefaultTokenPath when
// path is empty.
func NewFileTokenStore(path string) *FileTokenStore {
	if path == "" {
		path = DefaultTokenPath()
	}
	return &FileTokenStore{Path: path}
}

// Load reads the credential file.
func (s *FileTokenStore) Load(ctx context.Context) (*Credential, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var cred Credential
	if err := json.NewDecoder(f).Decode(&cred); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", s.Path, err)
	}
	return &cred, nil
}

// Save overwrites the credential file, creating its directory if needed.
func (s *FileTokenStore) Save(ctx context.Context, cred *Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(cred); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// SQLiteTokenStore keeps one credential per account name in a SQLite table.
type SQLiteTokenStore struct {
	db      *sql.DB
	account string
}

// OpenSQLiteTokenStore opens (or creates) the database at path.
func OpenSQLiteTokenStore(ctx context.Context, path, account string) (*SQLiteTokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS credentials (
		account_name TEXT PRIMARY KEY,
		credential TEXT NOT NULL)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}

	if account == "" {
		account = "default"
	}
	return &SQLiteTokenStore{db: db, account: account}, nil
}

// Load reads the account's credential.
func (s *SQLiteTokenStore) Load(ctx context.Context) (*Credential, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT credential FROM credentials WHERE account_name = ?", s.account).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to read credential for account %s: %w", s.account, err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential for account %s: %w", s.account, err)
	}
	return &cred, nil
}

// Save replaces the account's credential.
func (s *SQLiteTokenStore) Save(ctx context.Context, cred *Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR REPLACE INTO credentials (account_name, credential) VALUES (?, ?)", s.account, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save credential for account %s: %w", s.account, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteTokenStore) Close() error {
	return s.db.Close()
}
