// Package sdk provides the client-side library for the staffing record store.
// It supports remote connections via TCP/TLS, SQL databases and the local
// embedded engine.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/sirupsen/logrus"
)

const (
	maxAttempts     = 3
	dialTimeout     = 10 * time.Second
	commandDeadline = 30 * time.Second
	// The daemon drops connections idle past its 30s read deadline. Writes
	// are not resent, so they start on a fresh connection after this long.
	maxIdle = 20 * time.Second
)

// RemoteError is an ERR response from the daemon. It is never retried.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return e.Msg }

// Unwrap maps daemon messages back to the record-store sentinels.
func (e *RemoteError) Unwrap() error {
	if strings.HasPrefix(e.Msg, recordstore.ErrInvalidField.Error()) {
		return recordstore.ErrInvalidField
	}
	return nil
}

// Client is a remote client for the record-store daemon.
// It implements Backend.
type Client struct {
	addr       string
	disableTLS bool
	conn       net.Conn
	reader     *bufio.Reader
	lastUsed   time.Time
	mu         sync.Mutex // Protects concurrent access to the connection
}

// Connect establishes a TLS-encrypted connection to a remote record-store
// daemon. With disableTLS it falls back to plain TCP.
func Connect(addr string, disableTLS bool) (*Client, error) {
	c := &Client{addr: addr, disableTLS: disableTLS}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 60 * time.Second,
	}

	if c.disableTLS {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // We use self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}

	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.lastUsed = time.Now()
	return nil
}

// ErrUnconfirmed is returned when a write command reached the daemon but its
// reply was lost. The write may or may not have been applied.
var ErrUnconfirmed = errors.New("record store write not confirmed")

// mutates reports whether cmd changes records. Those commands are resent only
// when none of the line reached the connection.
func mutates(cmd string) bool {
	verb, _, _ := strings.Cut(cmd, " ")
	switch verb {
	case "INSERT", "UPDATE", "RESTORE":
		return true
	}
	return false
}

// Internal helper for TCP communication. It returns the payload after "OK",
// which is empty for bare OK and PONG responses.
func (c *Client) sendAndReceive(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	write := mutates(cmd)

	// Try up to 3 times with exponential backoff
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if write && c.conn != nil && time.Since(c.lastUsed) > maxIdle {
			c.reconnect()
		}
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		deadline := time.Now().Add(commandDeadline)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		var resp string
		var n int
		n, err = io.WriteString(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				c.lastUsed = time.Now()
				return parseResponse(strings.TrimSpace(resp))
			}
		}

		if write && n > 0 {
			// Drop the broken connection but never resend a write that left.
			if closeErr := c.reconnect(); closeErr != nil {
				logrus.WithError(closeErr).Warn("record store reconnect failed")
			}
			return "", fmt.Errorf("%w: %v", ErrUnconfirmed, err)
		}

		logrus.WithError(err).WithField("attempt", i+1).Warn("record store request failed, reconnecting")

		// Force a reconnect on the next iteration
		if closeErr := c.reconnect(); closeErr != nil {
			logrus.WithError(closeErr).Warn("record store reconnect failed")
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after %d attempts. last error: %w", maxAttempts, err)
}

func parseResponse(resp string) (string, error) {
	switch {
	case resp == "PONG" || resp == "OK":
		return "", nil
	case strings.HasPrefix(resp, "OK "):
		return strings.TrimPrefix(resp, "OK "), nil
	case resp == "ERR not found":
		return "", ErrNotFound
	case strings.HasPrefix(resp, "ERR"):
		return "", &RemoteError{Msg: strings.TrimSpace(strings.TrimPrefix(resp, "ERR"))}
	default:
		return "", fmt.Errorf("unexpected response %q", resp)
	}
}

func (c *Client) call(ctx context.Context, v any, command string, args ...any) error {
	parts := []string{command}
	for _, a := range args {
		switch a := a.(type) {
		case string:
			if a == "" || strings.ContainsAny(a, " \r\n") {
				return fmt.Errorf("invalid argument %q", a)
			}
			parts = append(parts, a)
		default:
			b, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode %s argument: %w", command, err)
			}
			parts = append(parts, string(b))
		}
	}

	payload, err := c.sendAndReceive(ctx, strings.Join(parts, " "))
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decode %s response: %w", command, err)
	}
	return nil
}

func (c *Client) FindOne(ctx context.Context, collection string, filter recordstore.Filter) (recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = recordstore.Filter{}
	}
	var rec recordstore.Record
	if err := c.call(ctx, &rec, "FIND_ONE", collection, filter); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) FindMany(ctx context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	recs := []recordstore.Record{}
	if err := c.call(ctx, &recs, "FIND_MANY", collection, q); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) Insert(ctx context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = recordstore.Record{}
	}
	var rec recordstore.Record
	if err := c.call(ctx, &rec, "INSERT", collection, fields); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, partial recordstore.Record) (recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if partial == nil {
		partial = recordstore.Record{}
	}
	var rec recordstore.Record
	if err := c.call(ctx, &rec, "UPDATE", collection, id, partial); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Restore(ctx context.Context, collection string, rec recordstore.Record) error {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return err
	}
	if rec.ID() == "" {
		return errors.New("record has no id")
	}
	return c.call(ctx, nil, "RESTORE", collection, rec)
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.sendAndReceive(ctx, "PING")
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// --- Generics Support ---

// FindOne retrieves a type-safe record using Go generics.
func FindOne[T any](ctx context.Context, s recordstore.Reader, collection string, filter recordstore.Filter) (T, error) {
	var target T
	rec, err := s.FindOne(ctx, collection, filter)
	if err != nil {
		return target, err
	}
	return recordstore.Decode[T](rec)
}

// FindMany retrieves type-safe records using Go generics.
func FindMany[T any](ctx context.Context, s recordstore.Reader, collection string, q recordstore.Query) ([]T, error) {
	recs, err := s.FindMany(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return recordstore.DecodeAll[T](recs)
}

// Insert stores a typed value and returns it as the store confirmed it.
// Fields the store maintains (id, created_at, updated_at) are ignored on input.
func Insert[T any](ctx context.Context, s recordstore.Writer, collection string, val T) (T, error) {
	var target T
	fields, err := recordstore.Encode(val)
	if err != nil {
		return target, err
	}
	delete(fields, recordstore.FieldID)
	delete(fields, recordstore.FieldCreatedAt)
	delete(fields, recordstore.FieldUpdatedAt)

	rec, err := s.Insert(ctx, collection, fields)
	if err != nil {
		return target, err
	}
	return recordstore.Decode[T](rec)
}

// Update applies partial and returns the typed record as the store confirmed it.
func Update[T any](ctx context.Context, s recordstore.Writer, collection, id string, partial recordstore.Record) (T, error) {
	var target T
	rec, err := s.Update(ctx, collection, id, partial)
	if err != nil {
		return target, err
	}
	return recordstore.Decode[T](rec)
}
