package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/signal"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_ticks (
	id         BIGSERIAL PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	up_count   BIGINT NOT NULL DEFAULT 0,
	down_count BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS price_ticks_ts_idx ON price_ticks (ts);
`

// Postgres implements TickRepository on top of a single price_ticks table.
type Postgres struct {
	db *sql.DB
}

// Open connects to postgres and verifies the connection with a linear
// backoff, then ensures the schema exists. Connection attempts are retried
// because the database container often comes up after the app.
func Open(dsn string, attempts int, log zerolog.Logger) (*Postgres, error) {
	if attempts <= 0 {
		attempts = 5
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	var pingErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingErr = db.Ping()
		if pingErr == nil {
			break
		}
		log.Warn().Err(pingErr).Int("attempt", attempt).Int("max", attempts).Msg("postgres ping failed")
		time.Sleep(time.Duration(attempt) * 1500 * time.Millisecond)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres after %d attempts: %w", attempts, pingErr)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Insert(ctx context.Context, tick signal.Tick) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO price_ticks (ts, price, up_count, down_count) VALUES ($1, $2, $3, $4)`,
		tick.Timestamp.UTC(), tick.Price, tick.UpCount, tick.DownCount,
	)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context) (*signal.Tick, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT ts, price, up_count, down_count FROM price_ticks ORDER BY ts DESC LIMIT 1`)
	var tick signal.Tick
	if err := row.Scan(&tick.Timestamp, &tick.Price, &tick.UpCount, &tick.DownCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest tick: %w", err)
	}
	tick.Timestamp = tick.Timestamp.UTC()
	return &tick, nil
}

func (p *Postgres) SumCounts(ctx context.Context) (int64, int64, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(up_count), 0), COALESCE(SUM(down_count), 0) FROM price_ticks`)
	var up, down int64
	if err := row.Scan(&up, &down); err != nil {
		return 0, 0, fmt.Errorf("sum counts: %w", err)
	}
	return up, down, nil
}

func (p *Postgres) SumCountsBefore(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(up_count), 0), COALESCE(SUM(down_count), 0) FROM price_ticks WHERE ts < $1`,
		cutoff.UTC(),
	)
	var up, down int64
	if err := row.Scan(&up, &down); err != nil {
		return 0, 0, fmt.Errorf("sum counts before %s: %w", cutoff, err)
	}
	return up, down, nil
}

func (p *Postgres) Range(ctx context.Context, since time.Time) ([]signal.Tick, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ts, price, up_count, down_count FROM price_ticks WHERE ts >= $1 ORDER BY ts ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query tick range: %w", err)
	}
	defer rows.Close()

	ticks := []signal.Tick{}
	for rows.Next() {
		var tick signal.Tick
		if err := rows.Scan(&tick.Timestamp, &tick.Price, &tick.UpCount, &tick.DownCount); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick.Timestamp = tick.Timestamp.UTC()
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}
