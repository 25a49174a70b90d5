package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"uewatch/internal/domain"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Save(ctx context.Context, ev domain.UpdateEvent) error {
	query := `
		INSERT INTO update_events (channel, message_id, version, message_at, preview, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel, message_id) DO NOTHING
	`

	_, err := p.db.ExecContext(ctx, query,
		ev.Channel,
		ev.MessageID,
		ev.Version,
		ev.Timestamp,
		ev.Preview,
		ev.DetectedAt,
	)

	return err
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]domain.UpdateEvent, error) {
	query := `
		SELECT channel, message_id, version, message_at, preview, detected_at
		FROM update_events ORDER BY detected_at DESC LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.UpdateEvent
	for rows.Next() {
		var ev domain.UpdateEvent
		if err := rows.Scan(
			&ev.Channel,
			&ev.MessageID,
			&ev.Version,
			&ev.Timestamp,
			&ev.Preview,
			&ev.DetectedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
