package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"centris_importer/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

const insertListingQuery = `
	INSERT INTO listings (
		id, user_id, centris_url, centris_id, title, description, price,
		address, city, postal_code, bedrooms, bathrooms, property_type,
		images, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
	)`

// InsertListing always creates a new row; importing the same URL twice
// yields two listings.
func (s *PostgresStore) InsertListing(ctx context.Context, l *models.ListingRecord) error {
	_, err := s.pool.Exec(ctx, insertListingQuery, listingArgs(l)...)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func listingArgs(l *models.ListingRecord) []any {
	return []any{
		l.ID, l.UserID, l.SourceURL, l.CentrisID, l.Title, l.Description, l.Price,
		l.Address, l.City, l.PostalCode, l.Bedrooms, l.Bathrooms, l.PropertyType,
		l.Images, l.CreatedAt,
	}
}
