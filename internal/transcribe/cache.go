package transcribe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	digest     TEXT NOT NULL,
	model      TEXT NOT NULL,
	filename   TEXT NOT NULL,
	transcript TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (digest, model)
)`

// Cache stores transcripts keyed by the SHA-256 of the audio bytes, so a file
// whose item failed to persist is not transcribed again on the next run.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the SQLite cache at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached transcript for digest and model.
func (c *Cache) Get(ctx context.Context, digest, model string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx,
		`SELECT transcript FROM transcripts WHERE digest = ? AND model = ?`,
		digest, model,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Put stores a transcript, replacing any previous entry for the same key.
func (c *Cache) Put(ctx context.Context, digest, model, filename, text string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO transcripts (digest, model, filename, transcript, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(digest, model) DO UPDATE SET
		   filename = excluded.filename,
		   transcript = excluded.transcript,
		   created_at = excluded.created_at`,
		digest, model, filename, text, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Cached wraps a Transcriber with a Cache. Cache failures are logged and
// never fail the transcription itself.
type Cached struct {
	next   Transcriber
	cache  *Cache
	model  string
	logger *log.Logger
}

// NewCached returns a Transcriber that consults cache before next.
func NewCached(next Transcriber, cache *Cache, model string, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{next: next, cache: cache, model: model, logger: logger}
}

// Transcribe returns a cached transcript when the audio was seen before.
func (c *Cached) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio %s: %w", filename, err)
	}
	digest := Digest(data)

	text, ok, err := c.cache.Get(ctx, digest, c.model)
	if err != nil {
		c.logger.Printf("transcript cache lookup failed for %s: %v", filename, err)
	} else if ok {
		c.logger.Printf("Using cached transcript for %s", filename)
		return text, nil
	}

	text, err = c.next.Transcribe(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	if err := c.cache.Put(ctx, digest, c.model, filename, text); err != nil {
		c.logger.Printf("transcript cache store failed for %s: %v", filename, err)
	}
	return text, nil
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
