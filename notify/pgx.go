package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// controlConn adapts a native pgx connection to the Conn interface. A
// dedicated connection is required here: LISTEN binds to the session, so the
// pooled database/sql handle the rest of the relay uses cannot carry it.
type controlConn struct {
	conn *pgx.Conn
}

func dialControl(ctx context.Context, dsn, handle string) (Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse control dsn: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	// The handle rides along as application_name so each subscription is
	// individually identifiable server-side (pg_stat_activity).
	cfg.RuntimeParams["application_name"] = handle
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial control connection: %w", err)
	}
	return &controlConn{conn: conn}, nil
}

func (c *controlConn) Listen(ctx context.Context, channel string) error {
	if _, err := c.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	return nil
}

func (c *controlConn) WaitForNotification(ctx context.Context) (string, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (c *controlConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
