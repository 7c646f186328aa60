// Package cache stores compiled grammars in a SQLite database keyed by the digest of
// their source, so that commands handed a grammar source skip recompiling it.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/tliron/commonlog"
)

var ErrNotFound = errors.New("compiled grammar not found in the cache")

const SchemaVersion = 1

// DefaultPath returns the database path used when none is given.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sapling", "grammars.db"), nil
}

// Digest returns the key a grammar source is stored under.
func Digest(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

type Entry struct {
	Digest    string
	Name      string
	CreatedAt time.Time
}

type Cache struct {
	db  *sql.DB
	log commonlog.Logger
}

// Open opens the database at path, creating it and its parent directories when
// necessary. The path ":memory:" opens a private in-memory database.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create the cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a distinct database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Cache{
		db:  db,
		log: commonlog.GetLogger("sapling.cache"),
	}, nil
}

func initSchema(db *sql.DB) error {
	var version int
	err := db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version == SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queries := []string{
		`DROP TABLE IF EXISTS grammars`,
		`CREATE TABLE grammars (
            digest TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            compiled BLOB NOT NULL,
            created_at INTEGER NOT NULL
        )`,
	}
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", q, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return tx.Commit()
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the compiled grammar stored for src, or ErrNotFound.
func (c *Cache) Get(src []byte) (*spec.CompiledGrammar, error) {
	var b []byte
	err := c.db.QueryRow("SELECT compiled FROM grammars WHERE digest = ?", Digest(src)).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query a compiled grammar: %w", err)
	}

	var g spec.CompiledGrammar
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("failed to decode a cached grammar: %w", err)
	}
	return &g, nil
}

// Put stores a compiled grammar for src, replacing any earlier entry.
func (c *Cache) Put(src []byte, g *spec.CompiledGrammar) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
        INSERT INTO grammars (digest, name, compiled, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(digest) DO UPDATE SET
            name = excluded.name,
            compiled = excluded.compiled,
            created_at = excluded.created_at
    `, Digest(src), g.Name, b, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store a compiled grammar: %w", err)
	}
	return nil
}

// Load returns the cached grammar for src. On a miss it calls compile and stores the
// result. A compile error is returned as is and nothing is stored.
func (c *Cache) Load(src []byte, compile func(src []byte) (*spec.CompiledGrammar, error)) (*spec.CompiledGrammar, error) {
	g, err := c.Get(src)
	if err == nil {
		c.log.Debugf("hit: %v (%v)", g.Name, Digest(src))
		return g, nil
	}
	if !errors.Is(err, ErrNotFound) {
		// A broken entry is recompiled and overwritten.
		c.log.Warningf("%v", err)
	}

	g, err = compile(src)
	if err != nil {
		return nil, err
	}
	if err := c.Put(src, g); err != nil {
		return nil, err
	}
	c.log.Debugf("stored: %v (%v)", g.Name, Digest(src))
	return g, nil
}

func (c *Cache) Entries() ([]*Entry, error) {
	rows, err := c.db.Query("SELECT digest, name, created_at FROM grammars ORDER BY created_at, digest")
	if err != nil {
		return nil, fmt.Errorf("failed to query compiled grammars: %w", err)
	}
	defer rows.Close()

	var es []*Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.Digest, &e.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan an entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		es = append(es, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return es, nil
}

func (c *Cache) Delete(src []byte) error {
	result, err := c.db.Exec("DELETE FROM grammars WHERE digest = ?", Digest(src))
	if err != nil {
		return fmt.Errorf("failed to delete a compiled grammar: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM grammars"); err != nil {
		return fmt.Errorf("failed to clear the cache: %w", err)
	}
	return nil
}
