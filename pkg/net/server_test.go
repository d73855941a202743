package net

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

func setupTestServer(t *testing.T) (*Server, int, func()) {
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

func connectToServer(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func sendAndReceive(t *testing.T, conn net.Conn, command string) string {
	t.Helper()

	conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err := conn.Write([]byte(command + "\n"))
	if err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	reader := bufio.NewReader(conn)
	var response strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		response.WriteString(line)
		if strings.Contains(line, "row(s))") ||
			strings.Contains(line, "ERROR") ||
			strings.Contains(line, "OK") ||
			strings.Contains(line, "Goodbye") ||
			strings.Contains(line, "BEGIN") ||
			strings.Contains(line, "COMMIT") ||
			strings.Contains(line, "ROLLBACK") ||
			strings.Contains(line, "Commands:") {
			break
		}
	}
	return response.String()
}

func TestServerStartStop(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	if server.ActiveConnections() != 0 {
		t.Errorf("expected 0 active connections, got %d", server.ActiveConnections())
	}
}

func TestServerConnection(t *testing.T) {
	server, port, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	welcome, _ := reader.ReadString('\n')
	if !strings.Contains(welcome, "graphd") {
		t.Errorf("expected welcome message, got: %s", welcome)
	}

	time.Sleep(50 * time.Millisecond)

	if server.ActiveConnections() != 1 {
		t.Errorf("expected 1 active connection, got %d", server.ActiveConnections())
	}
}

func TestServerHelp(t *testing.T) {
	_, port, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	reader.ReadString('\n')

	response := sendAndReceive(t, conn, "HELP;")
	if !strings.Contains(response, "Commands:") {
		t.Errorf("expected help text, got: %s", response)
	}
}

func TestServerCreateAndQuery(t *testing.T) {
	_, port, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	reader.ReadString('\n')

	response := sendAndReceive(t, conn, `CREATE (:Person {name: "Alice"});`)
	if !strings.Contains(response, "OK") {
		t.Errorf("expected OK for CREATE, got: %s", response)
	}

	response = sendAndReceive(t, conn, `MATCH (p:Person) RETURN p.name;`)
	if !strings.Contains(response, "Alice") {
		t.Errorf("expected to see Alice, got: %s", response)
	}
	if !strings.Contains(response, "(1 row(s))") {
		t.Errorf("expected 1 row, got: %s", response)
	}
}

func TestServerTransaction(t *testing.T) {
	_, port, cleanup := setupTestServer(t)
	defer cleanup()

	conn := connectToServer(t, port)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	reader.ReadString('\n')

	response := sendAndReceive(t, conn, "BEGIN;")
	if !strings.Contains(response, "BEGIN") {
		t.Errorf("expected BEGIN confirmation, got: %s", response)
	}

	sendAndReceive(t, conn, `CREATE (:Item {id: 1});`)

	response = sendAndReceive(t, conn, "COMMIT;")
	if !strings.Contains(response, "COMMIT") {
		t.Errorf("expected COMMIT confirmation, got: %s", response)
	}

	response = sendAndReceive(t, conn, `MATCH (i:Item) RETURN i.id;`)
	if !strings.Contains(response, "(1 row(s))") {
		t.Errorf("expected 1 row after commit, got: %s", response)
	}
}

func TestServerMultipleConnections(t *testing.T) {
	server, port, cleanup := setupTestServer(t)
	defer cleanup()

	conn1 := connectToServer(t, port)
	defer conn1.Close()

	conn2 := connectToServer(t, port)
	defer conn2.Close()

	time.Sleep(100 * time.Millisecond)

	if server.ActiveConnections() != 2 {
		t.Errorf("expected 2 active connections, got %d", server.ActiveConnections())
	}

	reader1 := bufio.NewReader(conn1)
	reader1.ReadString('\n')
	reader2 := bufio.NewReader(conn2)
	reader2.ReadString('\n')

	sendAndReceive(t, conn1, `CREATE (:Shared {id: 1});`)

	response := sendAndReceive(t, conn2, `MATCH (s:Shared) RETURN s.id;`)
	if !strings.Contains(response, "(1 row(s))") {
		t.Errorf("conn2 should see data from conn1, got: %s", response)
	}
}
