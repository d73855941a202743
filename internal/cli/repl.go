// Package cli provides the command-line interface and REPL for graphd
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jsoref/memgraph/internal/config"
	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
	"github.com/jsoref/memgraph/pkg/graph"
)

// REPL implements the Read-Eval-Print Loop for graphd, driving queries
// directly against a *interpret.Session the way psql drives them
// against a live backend connection.
type REPL struct {
	config  *config.Config
	log     *logger.Logger
	session *interpret.Session
	rl      *readline.Instance
}

// NewREPL creates a new REPL instance over an already-open session.
func NewREPL(cfg *config.Config, log *logger.Logger, session *interpret.Session) *REPL {
	return &REPL{
		config:  cfg,
		log:     log,
		session: session,
	}
}

// Run starts the REPL loop
func (r *REPL) Run() error {
	rlConfig := &readline.Config{
		Prompt:          "graphd> ",
		HistoryFile:     getHistoryFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    newCompleter(),
	}

	rl, err := readline.NewEx(rlConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	var multilineBuffer strings.Builder
	inMultiline := false

	for {
		if inMultiline {
			rl.SetPrompt("      -> ")
		} else {
			rl.SetPrompt("graphd> ")
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if inMultiline {
				multilineBuffer.Reset()
				inMultiline = false
				fmt.Println("^C")
				continue
			}
			continue
		} else if err == io.EOF {
			fmt.Println("\nGoodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if multilineBuffer.Len() > 0 {
			multilineBuffer.WriteString(" ")
		}
		multilineBuffer.WriteString(line)
		fullInput := multilineBuffer.String()

		// A backslash command runs immediately; everything else waits
		// for a closing semicolon so a MATCH/CREATE clause can span
		// several lines.
		if strings.HasPrefix(fullInput, "\\") || strings.HasSuffix(fullInput, ";") {
			result := r.processCommand(strings.TrimSuffix(fullInput, ";"))
			multilineBuffer.Reset()
			inMultiline = false
			if result == commandExit {
				fmt.Println("Goodbye!")
				return nil
			}
		} else {
			inMultiline = true
		}
	}
}

type commandResult int

const (
	commandOK commandResult = iota
	commandExit
	commandError
)

func (r *REPL) processCommand(input string) commandResult {
	input = strings.TrimSpace(input)
	upperInput := strings.ToUpper(input)

	if strings.HasPrefix(input, "\\") {
		return r.handleBackslashCommand(input)
	}

	switch upperInput {
	case "EXIT", "QUIT", "\\Q":
		return commandExit
	case "HELP", "\\?", "\\HELP":
		r.printHelp()
		return commandOK
	case "BEGIN":
		return r.runTxnCommand(r.session.Begin, "BEGIN")
	case "COMMIT":
		return r.runTxnCommand(r.session.Commit, "COMMIT")
	case "ROLLBACK":
		return r.runTxnCommand(r.session.Rollback, "ROLLBACK")
	}

	if input == "" {
		return commandOK
	}
	return r.runQuery(input)
}

func (r *REPL) runTxnCommand(fn func() error, name string) commandResult {
	if err := fn(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return commandError
	}
	fmt.Println(name)
	return commandOK
}

// runQuery executes input against the open session and renders the
// result as a header row, the returned rows, and a one-line summary,
// matching the shape a client driving the interpreter's Result would
// print.
func (r *REPL) runQuery(input string) commandResult {
	res, err := r.session.Execute(input, nil)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return commandError
	}

	if len(res.Header) == 0 {
		fmt.Println("OK")
		printSummary(res.Summary)
		return commandOK
	}

	fmt.Println(strings.Join(res.Header, " | "))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("(%d rows)\n", len(res.Rows))
	printSummary(res.Summary)
	return commandOK
}

// printSummary renders the per-query metadata trailer (the query type
// tag and the plan execution time) the way a psql-style client would
// report a query's timing footer.
func printSummary(summary map[string]graph.Value) {
	typ := "r"
	if t, ok := summary["type"]; ok {
		typ = t.AsString()
	}
	var execSec float64
	if t, ok := summary["plan_execution_time"]; ok {
		execSec = t.AsDouble()
	}
	fmt.Printf("(%s query, %.4fs)\n", typ, execSec)
}

func (r *REPL) handleBackslashCommand(input string) commandResult {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return commandOK
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "\\q", "\\quit", "\\exit":
		return commandExit

	case "\\?", "\\help":
		r.printHelp()
		return commandOK

	case "\\status":
		r.printStatus()
		return commandOK

	case "\\config":
		r.printConfig()
		return commandOK

	case "\\clear":
		fmt.Print("\033[H\033[2J") // ANSI clear screen
		return commandOK

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		fmt.Println("Type \\? for help")
		return commandError
	}
}

func (r *REPL) printWelcome() {
	fmt.Println(`
                             _         _
  __ _ _ __ __ _ _ __  _ __ | |__   __| |
 / _' | '__/ _' | '_ \| '_ \| '_ \ / _' |
| (_| | | | (_| | |_) | | | | | | | (_| |
 \__, |_|  \__,_| .__/|_| |_|_| |_|\__,_|
 |___/          |_|

    Type HELP; or \? for available commands
    `)
}

func (r *REPL) printHelp() {
	fmt.Println(`
graphd Commands
===============

Query Clauses:
  MATCH (n) RETURN n                 Read a pattern
  CREATE (n:Label {prop: 1})         Create a vertex or edge
  MERGE (n:Label {prop: 1})          Match or create
  SET n.prop = value                 Set a property
  DELETE n, DETACH DELETE n          Remove vertices/edges
  CREATE INDEX ON :Label(prop)       Build a label/property index
  CALL proc.name(args) YIELD col     Invoke a procedure

Transaction Commands:
  BEGIN                             Start an explicit transaction
  COMMIT                            Commit the open transaction
  ROLLBACK                          Abort the open transaction

Backslash Commands:
  \status                          Show server status
  \config                          Show configuration
  \clear                           Clear screen
  \?, \help                        Show this help
  \q, \quit                        Exit

Other:
  EXIT; or QUIT;                   Exit the shell
  HELP;                            Show this help

Note: Query clauses must end with ; (semicolon)
      Backslash commands do not need ;`)
}

func (r *REPL) printStatus() {
	fmt.Println("\ngraphd Status")
	fmt.Println("=============")
	fmt.Printf("Port:       %d\n", r.config.Server.Port)
	fmt.Printf("Log Level:  %s\n", r.config.Log.Level)
	fmt.Printf("Session failed: %v\n", r.session.Failed())
	fmt.Println()
}

func (r *REPL) printConfig() {
	fmt.Println("\nCurrent Configuration")
	fmt.Println("=====================")
	fmt.Printf("Server:\n")
	fmt.Printf("  Host:             %s\n", r.config.Server.Host)
	fmt.Printf("  Port:             %d\n", r.config.Server.Port)
	fmt.Printf("  Max Connections:  %d\n", r.config.Server.MaxConnections)
	fmt.Printf("\nQuery:\n")
	fmt.Printf("  Cost Planner:     %v\n", r.config.Query.CostPlanner)
	fmt.Printf("  Plan Cache:       %v\n", r.config.Query.PlanCache)
	fmt.Printf("  Plan Cache TTL:   %ds\n", r.config.Query.PlanCacheTTLSec)
	fmt.Printf("\nAuth:\n")
	fmt.Printf("  Data Directory:   %s\n", r.config.Auth.DataDir)
	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level:            %s\n", r.config.Log.Level)
	fmt.Printf("  Format:           %s\n", r.config.Log.Format)
	fmt.Printf("  Output:           %s\n", r.config.Log.Output)
	fmt.Println()
}

func getHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.graphd_history"
}

// newCompleter creates an auto-completer for the REPL
func newCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("MATCH"),
		readline.PcItem("OPTIONAL",
			readline.PcItem("MATCH"),
		),
		readline.PcItem("CREATE",
			readline.PcItem("INDEX"),
		),
		readline.PcItem("MERGE"),
		readline.PcItem("WHERE"),
		readline.PcItem("RETURN"),
		readline.PcItem("WITH"),
		readline.PcItem("ORDER",
			readline.PcItem("BY"),
		),
		readline.PcItem("SKIP"),
		readline.PcItem("LIMIT"),
		readline.PcItem("SET"),
		readline.PcItem("REMOVE"),
		readline.PcItem("DELETE"),
		readline.PcItem("DETACH",
			readline.PcItem("DELETE"),
		),
		readline.PcItem("CALL"),
		readline.PcItem("YIELD"),
		readline.PcItem("UNWIND"),
		readline.PcItem("BEGIN"),
		readline.PcItem("COMMIT"),
		readline.PcItem("ROLLBACK"),
		readline.PcItem("HELP"),
		readline.PcItem("EXIT"),
		readline.PcItem("QUIT"),
		readline.PcItem("\\status"),
		readline.PcItem("\\config"),
		readline.PcItem("\\clear"),
		readline.PcItem("\\help"),
		readline.PcItem("\\q"),
	)
}
