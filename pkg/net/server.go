// Package net provides TCP server functionality for graphd.
// It allows multiple clients to connect and run queries concurrently
// against a shared interpret.Interpreter.
package net

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
)

// Server is the TCP server for graphd.
type Server struct {
	listener net.Listener
	logger   *logger.Logger
	interp   *interpret.Interpreter

	// Connection management
	connID  atomic.Uint64
	conns   map[uint64]*Connection
	connsMu sync.Mutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	Port   int
	Logger *logger.Logger
	Interp *interpret.Interpreter
}

// NewServer creates a new TCP server.
func NewServer(cfg ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		logger: log,
		interp: cfg.Interp,
		conns:  make(map[uint64]*Connection),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the server listening on the specified port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.running.Store(true)

	s.logger.Info("server started", "address", addr)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	s.logger.Info("server stopped")
	return nil
}

// acceptLoop accepts new connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Error("accept error", "error", err)
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection handles a client connection.
func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()

	connID := s.connID.Add(1)
	conn := NewConnection(connID, netConn, s.interp, s.logger)

	s.registerConn(conn)
	defer s.unregisterConn(connID)

	s.logger.Debug("client connected", "connID", connID, "remote", netConn.RemoteAddr())

	conn.Handle(s.ctx)

	s.logger.Debug("client disconnected", "connID", connID)
}

// registerConn adds a connection to the active set.
func (s *Server) registerConn(conn *Connection) {
	s.connsMu.Lock()
	s.conns[conn.id] = conn
	s.connsMu.Unlock()
}

// unregisterConn removes a connection from the active set.
func (s *Server) unregisterConn(connID uint64) {
	s.connsMu.Lock()
	delete(s.conns, connID)
	s.connsMu.Unlock()
}

// ActiveConnections returns the number of active connections.
func (s *Server) ActiveConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Connection represents a client connection.
type Connection struct {
	id      uint64
	conn    net.Conn
	session *interpret.Session
	logger  *logger.Logger
	closed  atomic.Bool
}

// NewConnection creates a new connection handler over its own session
// against interp.
func NewConnection(id uint64, conn net.Conn, interp *interpret.Interpreter, log *logger.Logger) *Connection {
	return &Connection{
		id:      id,
		conn:    conn,
		session: interp.NewSession(),
		logger:  log,
	}
}

// Handle processes commands from the client.
func (c *Connection) Handle(ctx context.Context) {
	defer c.cleanup()

	c.send("graphd ready\n")

	reader := bufio.NewReader(c.conn)
	var buffer strings.Builder

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && !c.closed.Load() {
				c.logger.Debug("read error", "connID", c.id, "error", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buffer.Len() > 0 {
			buffer.WriteString(" ")
		}
		buffer.WriteString(line)

		input := buffer.String()
		if !strings.HasSuffix(input, ";") {
			continue
		}

		response := c.execute(input)
		c.send(response)
		buffer.Reset()
	}
}

// execute processes one query and returns the response.
func (c *Connection) execute(input string) string {
	cmd := strings.TrimSuffix(strings.TrimSpace(input), ";")
	cmdUpper := strings.ToUpper(cmd)

	switch cmdUpper {
	case "QUIT", "EXIT", "\\Q":
		c.Close()
		return "Goodbye!\n"
	case "HELP", "\\H", "\\?":
		return c.helpText()
	case "STATUS", "\\S":
		return c.statusText()
	case "BEGIN":
		if err := c.session.Begin(); err != nil {
			return fmt.Sprintf("ERROR: %v\n", err)
		}
		return "BEGIN\n"
	case "COMMIT":
		if err := c.session.Commit(); err != nil {
			return fmt.Sprintf("ERROR: %v\n", err)
		}
		return "COMMIT\n"
	case "ROLLBACK":
		if err := c.session.Rollback(); err != nil {
			return fmt.Sprintf("ERROR: %v\n", err)
		}
		return "ROLLBACK\n"
	}

	result, err := c.session.Execute(cmd, nil)
	if err != nil {
		return fmt.Sprintf("ERROR: %v\n", err)
	}

	return c.formatResult(result)
}

// formatResult formats a query result for the wire protocol.
func (c *Connection) formatResult(result *interpret.Result) string {
	if len(result.Header) == 0 {
		return "OK\n"
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(result.Header, "\t"))
	sb.WriteString("\n")

	for _, row := range result.Rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = v.String()
		}
		sb.WriteString(strings.Join(values, "\t"))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("(%d row(s))\n", len(result.Rows)))
	return sb.String()
}

// send writes a response to the client.
func (c *Connection) send(msg string) {
	if !c.closed.Load() {
		_, _ = c.conn.Write([]byte(msg))
	}
}

// Close closes the connection.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// cleanup releases resources when connection ends.
func (c *Connection) cleanup() {
	if c.session.InTransaction() {
		_ = c.session.Rollback()
	}
	c.Close()
}

// helpText returns help information.
func (c *Connection) helpText() string {
	return `Commands:
  HELP;              Show this help
  STATUS;            Show connection status
  EXIT;              Disconnect

Query:
  MATCH (n) RETURN n;
  CREATE (n:Label {prop: 1});
  MERGE (n:Label {prop: 1});
  SET n.prop = value;
  DELETE n; / DETACH DELETE n;
  CREATE INDEX ON :Label(prop);
  CALL proc.name(args) YIELD col;

Transactions:
  BEGIN;             Start transaction
  COMMIT;            Commit transaction
  ROLLBACK;          Rollback transaction
`
}

// statusText returns status information.
func (c *Connection) statusText() string {
	txStatus := "No"
	if c.session.InTransaction() {
		txStatus = "Yes"
	}
	return fmt.Sprintf("Connection ID: %d\nIn Transaction: %s\n", c.id, txStatus)
}
