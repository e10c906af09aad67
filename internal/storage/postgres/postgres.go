package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/minofeel/TuringBot/internal/chatlog"
)

const (
	defaultQueryLimit = 200
	maxQueryLimit     = 10000
)

// Options describes how to reach the message log database.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the options as a lib/pq connection string. Values containing
// spaces, quotes or backslashes are quoted.
func (o Options) DSN() string {
	sslmode := o.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + quoteDSNValue(o.Host),
		fmt.Sprintf("port=%d", o.Port),
		"user=" + quoteDSNValue(o.User),
	}
	if o.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(o.Password))
	}
	parts = append(parts,
		"dbname="+quoteDSNValue(o.Database),
		"sslmode="+quoteDSNValue(sslmode),
	)
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// MessageRow is a logged chat message as stored in Postgres.
type MessageRow struct {
	RowID     int64     `json:"row_id"`
	MessageID string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    *string   `json:"author,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
	LoggedAt  time.Time `json:"logged_at"`
}

// Client is the Postgres-backed message log. It implements chatlog.Sink.
type Client struct {
	db *sql.DB
}

var _ chatlog.Sink = (*Client)(nil)

// New opens the database, verifies the connection and creates the table.
func New(ctx context.Context, opts Options) (*Client, error) {
	db, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat_messages table: %w", err)
	}

	return client, nil
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS chat_messages (
			row_id     BIGSERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			channel_id TEXT NOT NULL,
			author     TEXT,
			content    TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			logged_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_ts ON chat_messages(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_channel ON chat_messages(channel_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Append inserts a message. Re-delivering a message with the same ID is a no-op.
func (c *Client) Append(ctx context.Context, msg chatlog.Message) error {
	var authorPtr *string
	if msg.Author != "" {
		authorPtr = &msg.Author
	}

	query := `
		INSERT INTO chat_messages (message_id, channel_id, author, content, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO NOTHING
	`
	if _, err := c.db.ExecContext(ctx, query, msg.ID, msg.ChannelID, authorPtr, msg.Content, msg.Timestamp); err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// Recent returns the last messages in descending timestamp order. An empty
// channelID matches every channel.
func (c *Client) Recent(ctx context.Context, channelID string, limit int) ([]MessageRow, error) {
	query := `
		SELECT row_id, message_id, channel_id, author, content, ts, logged_at
		FROM chat_messages
		WHERE ($1::text = '' OR channel_id = $1::text)
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, channelID, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		var author sql.NullString

		if err := rows.Scan(&m.RowID, &m.MessageID, &m.ChannelID, &author, &m.Content, &m.Timestamp, &m.LoggedAt); err != nil {
			return nil, err
		}
		if author.Valid {
			m.Author = &author.String
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// ClampLimit applies the default and maximum row limits for Recent.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
