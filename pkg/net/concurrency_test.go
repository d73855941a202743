package net

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

// TestConcurrentInserts verifies that multiple clients can create vertices
// simultaneously.
func TestConcurrentInserts(t *testing.T) {
	_, port, cleanup := setupConcurrencyTestServer(t)
	defer cleanup()

	const numClients = 5
	const createsPerClient = 10

	var wg sync.WaitGroup
	errors := make(chan error, numClients*createsPerClient)

	for c := 0; c < numClients; c++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			clientConn := connectToServer(t, port)
			defer clientConn.Close()
			skipWelcome(clientConn)

			for i := 0; i < createsPerClient; i++ {
				id := clientID*100 + i
				cmd := fmt.Sprintf("CREATE (:Counter {id: %d});", id)
				resp := sendAndReceive(t, clientConn, cmd)
				if !strings.Contains(resp, "OK") {
					errors <- fmt.Errorf("client %d create %d failed: %s", clientID, i, resp)
				}
			}
		}(c)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}

	verifyConn := connectToServer(t, port)
	defer verifyConn.Close()
	skipWelcome(verifyConn)

	resp := sendAndReceive(t, verifyConn, "MATCH (c:Counter) RETURN c.id;")
	expected := fmt.Sprintf("(%d row(s))", numClients*createsPerClient)
	if !strings.Contains(resp, expected) {
		t.Errorf("expected %s, got: %s", expected, resp)
	}
}

// TestConcurrentTransactions verifies that a reader started before a
// writer's commit sees the pre-transaction value under MVCC snapshot
// isolation.
func TestConcurrentTransactions(t *testing.T) {
	_, port, cleanup := setupConcurrencyTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	skipWelcome(conn)
	sendAndReceive(t, conn, `CREATE (:Account {name: "checking", balance: 1000});`)
	conn.Close()

	var wg sync.WaitGroup
	results := make(chan string, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c1 := connectToServer(t, port)
		defer c1.Close()
		skipWelcome(c1)

		sendAndReceive(t, c1, "BEGIN;")
		sendAndReceive(t, c1, `MATCH (a:Account {name: "checking"}) SET a.balance = 500;`)

		time.Sleep(200 * time.Millisecond)

		resp := sendAndReceive(t, c1, "COMMIT;")
		results <- fmt.Sprintf("client1: %s", resp)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)

		c2 := connectToServer(t, port)
		defer c2.Close()
		skipWelcome(c2)

		resp := sendAndReceive(t, c2, `MATCH (a:Account {name: "checking"}) RETURN a.balance;`)
		results <- fmt.Sprintf("client2: %s", resp)
	}()

	wg.Wait()
	close(results)

	for result := range results {
		if strings.Contains(result, "ERROR") {
			t.Errorf("unexpected error: %s", result)
		}
	}
}

// TestConcurrentReads verifies that multiple readers don't block each other.
func TestConcurrentReads(t *testing.T) {
	_, port, cleanup := setupConcurrencyTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	skipWelcome(conn)
	for i := 0; i < 100; i++ {
		sendAndReceive(t, conn, fmt.Sprintf(`CREATE (:Reading {id: %d, value: "value%d"});`, i, i))
	}
	conn.Close()

	const numReaders = 10
	var wg sync.WaitGroup
	successCount := make(chan int, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := connectToServer(t, port)
			defer c.Close()
			skipWelcome(c)

			resp := sendAndReceive(t, c, "MATCH (r:Reading) RETURN r.id;")
			if strings.Contains(resp, "(100 row(s))") {
				successCount <- 1
			} else {
				successCount <- 0
			}
		}()
	}

	wg.Wait()
	close(successCount)

	total := 0
	for s := range successCount {
		total += s
	}

	if total != numReaders {
		t.Errorf("expected %d successful reads, got %d", numReaders, total)
	}
}

// Helper functions

func setupConcurrencyTestServer(t *testing.T) (*Server, int, func()) {
	t.Helper()

	store := storage.NewStore(txn.NewManager(), lock.NewManager())
	interp := interpret.New(store, interpret.DefaultConfig())

	cfg := ServerConfig{
		Logger: logger.NewNop(),
		Interp: interp,
	}

	server := NewServer(cfg)

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	if err := server.Start(port); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cleanup := func() {
		server.Stop()
	}

	return server, port, cleanup
}

func skipWelcome(conn net.Conn) {
	reader := bufio.NewReader(conn)
	_, _ = reader.ReadString('\n')
}
