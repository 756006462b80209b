package sdk_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/server"
	"github.com/celerix-dev/celerix-staffing/internal/vault"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore/storetest"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
)

// serve runs a router on a random local port without TLS.
func serve(t *testing.T, store server.Store) string {
	t.Helper()
	router := server.NewRouter(store)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				router.HandleConnection(conn)
			}()
		}
	}()
	return listener.Addr().String()
}

func TestGenericHelpers(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil)

	staff, err := sdk.Insert(ctx, store, schema.CollectionStaff, schema.Staff{
		ID:         "ignored",
		Name:       "鈴木 一郎",
		Department: "レストラン",
		HourlyRate: 1300,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if staff.ID == "" || staff.ID == "ignored" {
		t.Errorf("Insert did not take the store id: %q", staff.ID)
	}
	if staff.CreatedAt.IsZero() {
		t.Error("Insert did not return created_at")
	}

	got, err := sdk.FindOne[schema.Staff](ctx, store, schema.CollectionStaff, recordstore.Where(recordstore.Eq("id", staff.ID)))
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if got.HourlyRate != 1300 || got.Department != "レストラン" {
		t.Errorf("Unexpected staff: %+v", got)
	}

	updated, err := sdk.Update[schema.Staff](ctx, store, schema.CollectionStaff, staff.ID, recordstore.Record{"position": "ホール"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Position != "ホール" || updated.Name != "鈴木 一郎" {
		t.Errorf("Unexpected update: %+v", updated)
	}

	all, err := sdk.FindMany[schema.Staff](ctx, store, schema.CollectionStaff, recordstore.Query{})
	if err != nil || len(all) != 1 {
		t.Errorf("FindMany: %v, %d records", err, len(all))
	}
}

func TestClient_Contract(t *testing.T) {
	addr := serve(t, engine.NewMemStore(nil, nil))

	client, err := sdk.Connect(addr, true)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	storetest.Run(t, client)
}

func TestClient_PingAndRemoteErrors(t *testing.T) {
	addr := serve(t, engine.NewMemStore(nil, nil))
	client, err := sdk.Connect(addr, true)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	_, err = client.FindMany(ctx, "staff", recordstore.Query{
		Filter: recordstore.Where(recordstore.Condition{Field: "name", Op: "like", Value: "%"}),
	})
	var remote *sdk.RemoteError
	if !errors.As(err, &remote) {
		t.Errorf("Expected RemoteError, got %v", err)
	}

	if err := client.Restore(ctx, "staff", recordstore.Record{"name": "no id"}); err == nil {
		t.Error("Expected Restore without id to fail")
	}
}

func TestClient_TLS(t *testing.T) {
	cert, err := vault.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	router := server.NewRouter(engine.NewMemStore(nil, nil))
	router.SetCertificate(cert)
	go router.Listen("0")
	defer router.Stop()

	var addr net.Addr
	for i := 0; i < 20 && addr == nil; i++ {
		time.Sleep(25 * time.Millisecond)
		addr = router.Addr()
	}
	if addr == nil {
		t.Fatal("Server did not start in time")
	}

	client, err := sdk.Connect(addr.String(), false)
	if err != nil {
		t.Fatalf("TLS connect failed: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping over TLS failed: %v", err)
	}
}

func TestClient_RetryLogic(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	router := server.NewRouter(store)

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := listener.Addr().String()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			accepted <- conn
			router.HandleConnection(conn)
		}
	}()

	client, err := sdk.Connect(addr, true)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	// Close the listener so no more connections can be accepted, then drop
	// the live one. Every retry must fail without panicking.
	listener.Close()
	(<-accepted).Close()

	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to fail once the daemon is gone")
	}
}

// dropFirst is a daemon that drops the connection on the first command of
// each verb without replying and answers every later one with "OK []".
type dropFirst struct {
	mu   sync.Mutex
	seen map[string]int
}

func (d *dropFirst) count(verb string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[verb]
}

func (d *dropFirst) serve(t *testing.T) string {
	t.Helper()
	d.seen = map[string]int{}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					verb, _, _ := strings.Cut(scanner.Text(), " ")
					d.mu.Lock()
					d.seen[verb]++
					n := d.seen[verb]
					d.mu.Unlock()
					if n == 1 {
						return
					}
					fmt.Fprintln(conn, "OK []")
				}
			}()
		}
	}()
	return listener.Addr().String()
}

func TestClient_WritesAreNotResent(t *testing.T) {
	ctx := context.Background()
	daemon := &dropFirst{}
	client, err := sdk.Connect(daemon.serve(t), true)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	_, err = client.Insert(ctx, schema.CollectionAttendances, recordstore.Record{"staff_id": "s1"})
	if !errors.Is(err, sdk.ErrUnconfirmed) {
		t.Fatalf("Expected ErrUnconfirmed, got %v", err)
	}
	if n := daemon.count("INSERT"); n != 1 {
		t.Errorf("Expected INSERT to reach the daemon once, got %d", n)
	}

	_, err = client.Update(ctx, schema.CollectionAttendances, "a1", recordstore.Record{"status": "clocked_out"})
	if !errors.Is(err, sdk.ErrUnconfirmed) {
		t.Fatalf("Expected ErrUnconfirmed on update, got %v", err)
	}
	if n := daemon.count("UPDATE"); n != 1 {
		t.Errorf("Expected UPDATE to reach the daemon once, got %d", n)
	}

	// Reads are still retried on a fresh connection.
	recs, err := client.FindMany(ctx, schema.CollectionAttendances, recordstore.Query{})
	if err != nil {
		t.Fatalf("FindMany was not retried: %v", err)
	}
	if len(recs) != 0 || daemon.count("FIND_MANY") != 2 {
		t.Errorf("Unexpected FindMany result %v after %d sends", recs, daemon.count("FIND_MANY"))
	}
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	b, err := sdk.Open(ctx, sdk.Options{Backend: sdk.BackendEmbedded, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if _, ok := b.(*engine.MemStore); !ok {
		t.Errorf("Expected *engine.MemStore, got %T", b)
	}
	b.Close()

	// Auto with an unreachable daemon falls back to embedded.
	b, err = sdk.Open(ctx, sdk.Options{Addr: "127.0.0.1:1", DisableTLS: true, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("auto: %v", err)
	}
	if _, ok := b.(*engine.MemStore); !ok {
		t.Errorf("Expected fallback to *engine.MemStore, got %T", b)
	}
	b.Close()

	if _, err := sdk.Open(ctx, sdk.Options{Backend: sdk.BackendRemote, Addr: "127.0.0.1:1", DisableTLS: true}); err == nil {
		t.Error("Expected explicit remote backend to fail when unreachable")
	}

	if _, err := sdk.Open(ctx, sdk.Options{Backend: "mongo"}); err == nil {
		t.Error("Expected unknown backend to fail")
	}

	addr := serve(t, engine.NewMemStore(nil, nil))
	b, err = sdk.Open(ctx, sdk.Options{Backend: sdk.BackendRemote, Addr: addr, DisableTLS: true})
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if _, ok := b.(*sdk.Client); !ok {
		t.Errorf("Expected *sdk.Client, got %T", b)
	}
	b.Close()
}
