package systemd

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	logindDest = "org.freedesktop.login1"
	logindPath = dbus.ObjectPath("/org/freedesktop/login1")

	methodSuspend      = "org.freedesktop.login1.Manager.Suspend"
	methodHibernate    = "org.freedesktop.login1.Manager.Hibernate"
	methodCanSuspend   = "org.freedesktop.login1.Manager.CanSuspend"
	methodCanHibernate = "org.freedesktop.login1.Manager.CanHibernate"
)

// Conn is the part of a D-Bus connection the client uses.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// Client issues sleep requests to systemd-logind.
type Client struct {
	conn   Conn
	logger zerolog.Logger
	dryRun bool
}

// NewClient connects to the system bus. In dry-run mode no connection is
// made and requests are only logged.
func NewClient(logger zerolog.Logger, dryRun bool) (*Client, error) {
	c := &Client{logger: logger, dryRun: dryRun}
	if dryRun {
		return c, nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	c.conn = conn
	return c, nil
}

// NewClientWithConn uses an existing connection.
func NewClientWithConn(conn Conn, logger zerolog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// IssueCommand requests "suspend" or "hibernate" from logind. The call
// returns once the system has resumed.
func (c *Client) IssueCommand(ctx context.Context, command string) error {
	var method string
	switch command {
	case "suspend":
		method = methodSuspend
	case "hibernate":
		method = methodHibernate
	default:
		return fmt.Errorf("unsupported command: %s", command)
	}

	if c.dryRun {
		c.logger.Info().Str("command", command).Msg("DRY RUN: Would issue sleep command")
		return nil
	}

	obj := c.conn.Object(logindDest, logindPath)
	if call := obj.CallWithContext(ctx, method, 0, false); call.Err != nil {
		return fmt.Errorf("failed to execute %s: %w", command, call.Err)
	}
	return nil
}

// Can reports logind's answer ("yes", "no", "challenge", ...) to whether
// command is allowed.
func (c *Client) Can(ctx context.Context, command string) (string, error) {
	var method string
	switch command {
	case "suspend":
		method = methodCanSuspend
	case "hibernate":
		method = methodCanHibernate
	default:
		return "", fmt.Errorf("unsupported command: %s", command)
	}

	if c.dryRun {
		return "yes", nil
	}

	var answer string
	obj := c.conn.Object(logindDest, logindPath)
	if err := obj.CallWithContext(ctx, method, 0).Store(&answer); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", method, err)
	}
	return answer, nil
}

// Parker parks the system with one logind command.
type Parker struct {
	client  *Client
	command string
}

// Parker returns a Parker for command once logind allows it without
// interaction.
func (c *Client) Parker(ctx context.Context, command string) (*Parker, error) {
	answer, err := c.Can(ctx, command)
	if err != nil {
		return nil, err
	}
	if answer != "yes" {
		return nil, fmt.Errorf("logind refuses %s: %s", command, answer)
	}

	c.logger.Info().Str("command", command).Msg("Parking through logind")
	return &Parker{client: c, command: command}, nil
}

func (p *Parker) Park(ctx context.Context) error {
	return p.client.IssueCommand(ctx, p.command)
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
