// Package relstore is the relational side-effect surface for a played
// track: recording a listen, and backfilling an album the catalogue
// hasn't seen yet when a listen references one.
package relstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store holds the connection pool used to invoke Provider-D's ingest
// stored procedures.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("relstore: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relstore: ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that Postgres is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Author, AlbumInput and TrackInput are the composite row types
// add_album_deezer projects its arguments from — one album header plus
// its full track listing, as resolved by C5.
type Author struct {
	ID   string
	Name string
}

type AlbumInput struct {
	ID         string
	Title      string
	ArtworkRef string
}

type TrackInput struct {
	ID              string
	Title           string
	DurationSeconds string
}

// RecordListen calls the record_listen_deezer stored procedure and
// reports whether it recognised the track (true) or rejected it for a
// foreign-key miss on the album (false). A genuine database error is
// returned as err; a recognised-but-false result is not an error.
func (s *Store) RecordListen(ctx context.Context, trackID string) (bool, error) {
	var recorded bool
	err := s.pool.QueryRow(ctx, `SELECT record_listen_deezer($1)`, trackID).Scan(&recorded)
	if err != nil {
		return false, fmt.Errorf("relstore: record_listen_deezer(%s): %w", trackID, err)
	}
	return recorded, nil
}

// AddAlbum calls the add_album_deezer stored procedure to register an
// album and its tracks ahead of a retried RecordListen.
func (s *Store) AddAlbum(ctx context.Context, author Author, album AlbumInput, tracks []TrackInput) error {
	authorRow := []any{author.ID, author.Name}
	albumRow := []any{album.ID, album.Title, album.ArtworkRef}

	trackRows := make([]any, len(tracks))
	for i, t := range tracks {
		trackRows[i] = []any{t.ID, t.Title, t.DurationSeconds}
	}

	_, err := s.pool.Exec(ctx, `CALL add_album_deezer($1, $2, $3)`, authorRow, albumRow, trackRows)
	if err != nil {
		return fmt.Errorf("relstore: add_album_deezer(%s): %w", album.ID, err)
	}
	return nil
}
