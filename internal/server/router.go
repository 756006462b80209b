// Package server exposes a record store over a line-oriented TCP protocol so
// that the CLI and other daemon instances can share one store.
package server

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
	maxConnections = 100
	connDeadline   = 5 * time.Minute
	commandTimeout = 30 * time.Second
	// Records travel as one JSON line; an import of a large roster can be long.
	maxLineBytes = 4 << 20
)

// Store is what the router serves: the record-store contract plus Restore
// for remote migrations.
type Store interface {
	recordstore.Store
	recordstore.Restorer
}

type Router struct {
	store Store
	cert  *tls.Certificate

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewRouter(s Store) *Router {
	return &Router{store: s}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server. It returns nil after Stop.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}, MinVersion: tls.VersionTLS12}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return listener.Close()
	}
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithError(err).Warn("accept failed")
			continue
		}

		// Set aggressive timeouts for light traffic to prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(connDeadline))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener. Open connections finish their current command.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// HandleConnection serves commands from conn until QUIT, EOF or a read timeout.
func (r *Router) HandleConnection(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for {
		conn.SetReadDeadline(time.Now().Add(commandTimeout))
		if !scanner.Scan() {
			return // Connection closed or timeout
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, rest, _ := strings.Cut(line, " ")

		switch strings.ToUpper(command) {
		case "PING":
			fmt.Fprintln(conn, "PONG")
		case "QUIT":
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			r.execute(ctx, conn, strings.ToUpper(command), strings.TrimSpace(rest))
			cancel()
		}
	}
}

func (r *Router) execute(ctx context.Context, w io.Writer, command, args string) {
	switch command {
	case "FIND_ONE":
		collection, payload, ok := splitArgs(args)
		if !ok {
			writeErr(w, errors.New("usage: FIND_ONE <collection> <filter-json>"))
			return
		}
		var filter recordstore.Filter
		if err := decodeArg(payload, &filter); err != nil {
			writeErr(w, err)
			return
		}
		writeResult(w)(r.store.FindOne(ctx, collection, filter))

	case "FIND_MANY":
		collection, payload, ok := splitArgs(args)
		if !ok {
			writeErr(w, errors.New("usage: FIND_MANY <collection> <query-json>"))
			return
		}
		var q recordstore.Query
		if err := decodeArg(payload, &q); err != nil {
			writeErr(w, err)
			return
		}
		writeResults(w)(r.store.FindMany(ctx, collection, q))

	case "LIST":
		if args == "" || strings.Contains(args, " ") {
			writeErr(w, errors.New("usage: LIST <collection>"))
			return
		}
		writeResults(w)(r.store.FindMany(ctx, args, recordstore.Query{}))

	case "INSERT":
		collection, payload, ok := splitArgs(args)
		if !ok {
			writeErr(w, errors.New("usage: INSERT <collection> <fields-json>"))
			return
		}
		var fields recordstore.Record
		if err := decodeArg(payload, &fields); err != nil {
			writeErr(w, err)
			return
		}
		writeResult(w)(r.store.Insert(ctx, collection, fields))

	case "UPDATE":
		collection, rest, ok := splitArgs(args)
		if !ok {
			writeErr(w, errors.New("usage: UPDATE <collection> <id> <partial-json>"))
			return
		}
		id, payload, ok := splitArgs(rest)
		if !ok {
			writeErr(w, errors.New("usage: UPDATE <collection> <id> <partial-json>"))
			return
		}
		var partial recordstore.Record
		if err := decodeArg(payload, &partial); err != nil {
			writeErr(w, err)
			return
		}
		writeResult(w)(r.store.Update(ctx, collection, id, partial))

	case "RESTORE":
		collection, payload, ok := splitArgs(args)
		if !ok {
			writeErr(w, errors.New("usage: RESTORE <collection> <record-json>"))
			return
		}
		var rec recordstore.Record
		if err := decodeArg(payload, &rec); err != nil {
			writeErr(w, err)
			return
		}
		if err := r.store.Restore(ctx, collection, rec); err != nil {
			writeErr(w, err)
			return
		}
		fmt.Fprintln(w, "OK")

	default:
		writeErr(w, fmt.Errorf("unknown command %s", command))
	}
}

func splitArgs(args string) (head, tail string, ok bool) {
	head, tail, ok = strings.Cut(args, " ")
	tail = strings.TrimSpace(tail)
	return head, tail, ok && head != "" && tail != ""
}

func decodeArg(payload string, v any) error {
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return errors.New("invalid json value")
	}
	return nil
}

func writeErr(w io.Writer, err error) {
	if errors.Is(err, recordstore.ErrNotFound) {
		fmt.Fprintln(w, "ERR not found")
		return
	}
	fmt.Fprintln(w, "ERR", strings.ReplaceAll(err.Error(), "\n", " "))
}

func writeJSON(w io.Writer, v any) {
	res, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(w, "ERR internal error")
		return
	}
	fmt.Fprintln(w, "OK", string(res))
}

func writeResult(w io.Writer) func(recordstore.Record, error) {
	return func(rec recordstore.Record, err error) {
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, rec)
	}
}

func writeResults(w io.Writer) func([]recordstore.Record, error) {
	return func(recs []recordstore.Record, err error) {
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, recs)
	}
}
