package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/peterh/liner"
	_ "modernc.org/sqlite"

	"github.com/nonibytes/vecsql/internal/logger"
	"github.com/nonibytes/vecsql/vecsql"
	"github.com/nonibytes/vecsql/vecsql/adapters/postgres"
	"github.com/nonibytes/vecsql/vecsql/adapters/sqlite"
	"github.com/nonibytes/vecsql/vecsql/exec"
	"github.com/nonibytes/vecsql/vecsql/federate"
	"github.com/nonibytes/vecsql/vecsql/planner"
	"github.com/nonibytes/vecsql/vecsql/schema"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	ctx := context.Background()

	switch command {
	case "explain":
		handleExplain(os.Args[2:])
	case "query":
		handleQuery(ctx, os.Args[2:])
	case "load":
		handleLoad(ctx, os.Args[2:])
	case "repl":
		handleREPL(ctx, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("vecsql - SQL queries over vector record collections")
	fmt.Println("\nUsage:")
	fmt.Println("  vecsql explain -schema <schema.json> [-params <json>] <query>")
	fmt.Println("  vecsql query -schema <schema.json> -i <path|dsn> [-backend sqlite|postgres] [-driver sqlite|sqlite3]")
	fmt.Println("               [-routes <routes.json>] [-params <json>] [-policy fail-fast|best-effort]")
	fmt.Println("               [-timeout 5s] [-parallelism N] [-format pretty|json] <query>")
	fmt.Println("  vecsql load -schema <schema.json> -i <path|dsn> -c <collection> [-backend sqlite|postgres]  (JSON lines from stdin)")
	fmt.Println("  vecsql repl -schema <schema.json> -i <path|dsn> [-backend sqlite|postgres] [-routes <routes.json>]")
	fmt.Println("\nBackends:")
	fmt.Println("  sqlite   - SQLite file database (default); -driver selects the pure-Go or cgo driver")
	fmt.Println("  postgres - PostgreSQL database; -i is the connection string, -schema-name the pg schema")
	fmt.Println("\nLoad input is one JSON object per line: {\"id\": ..., \"metadata\": {...}, \"vector\": [...]}")
	fmt.Println("Params supply MATCH vectors by name: -params '{\"q\": [0.1, 0.2]}'")
}

func loadSchema(path string) schema.Schema {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error reading schema file: %v\n", err)
		os.Exit(1)
	}
	sch, err := schema.FromJSON(data)
	if err != nil {
		fmt.Printf("Error parsing schema: %v\n", err)
		os.Exit(1)
	}
	return sch
}

func loadParams(raw string) planner.Params {
	if raw == "" {
		return nil
	}
	var params planner.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		fmt.Printf("Error parsing params: %v\n", err)
		os.Exit(1)
	}
	return params
}

// routesConfig is the on-disk routing registry: the collection universe plus
// equality rules mapping field values to collections.
type routesConfig struct {
	Collections []string `json:"collections"`
	Rules       []struct {
		Field  string            `json:"field"`
		Values map[string]string `json:"values"`
	} `json:"rules"`
}

func loadRegistry(path string, sch schema.Schema) *federate.Registry {
	if path == "" {
		// Default universe: every collection in the schema, no rules.
		names := make([]string, 0, len(sch.Collections))
		for name := range sch.Collections {
			names = append(names, name)
		}
		sort.Strings(names)
		return federate.NewRegistry(names)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error reading routes file: %v\n", err)
		os.Exit(1)
	}
	var cfg routesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		fmt.Printf("Error parsing routes file: %v\n", err)
		os.Exit(1)
	}
	rules := make([]federate.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, federate.Rule{Field: r.Field, Values: r.Values})
	}
	return federate.NewRegistry(cfg.Collections, rules...)
}

// openFactory opens the backend store and returns its provider factory plus
// a close function.
func openFactory(ctx context.Context, backend, path, driver, schemaName string) (exec.ProviderFactory, func()) {
	switch backend {
	case "postgres", "pg":
		if schemaName == "" {
			schemaName = "vecsql"
		}
		store, err := postgres.Open(ctx, path, schemaName)
		if err != nil {
			fmt.Printf("Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		return store.ProviderFor, func() { _ = store.Close() }
	default:
		store, err := sqlite.OpenWithDriver(ctx, path, driver)
		if err != nil {
			fmt.Printf("Error opening sqlite store: %v\n", err)
			os.Exit(1)
		}
		return store.ProviderFor, func() { _ = store.Close() }
	}
}

func handleExplain(args []string) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	schemaFile := fs.String("schema", "", "schema JSON file (required)")
	paramsJSON := fs.String("params", "", "MATCH vector parameters as JSON")
	fs.Parse(args)

	if *schemaFile == "" || fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	sch := loadSchema(*schemaFile)
	node, err := vecsql.Explain(fs.Arg(0), sch, loadParams(*paramsJSON))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding plan: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func handleQuery(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	schemaFile := fs.String("schema", "", "schema JSON file (required)")
	indexPath := fs.String("i", "", "database path or connection string (required)")
	backend := fs.String("backend", "sqlite", "backend: sqlite or postgres")
	driver := fs.String("driver", "sqlite", "sqlite driver: sqlite (pure Go) or sqlite3 (cgo)")
	schemaName := fs.String("schema-name", "", "PostgreSQL schema name (default: vecsql)")
	routesFile := fs.String("routes", "", "routing rules JSON file")
	paramsJSON := fs.String("params", "", "MATCH vector parameters as JSON")
	policy := fs.String("policy", "fail-fast", "failure policy: fail-fast or best-effort")
	timeout := fs.Duration("timeout", 30*time.Second, "overall query deadline")
	parallelism := fs.Int("parallelism", 0, "max concurrent collection tasks (0 = unbounded)")
	format := fs.String("format", "pretty", "output format: pretty or json")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	fs.Parse(args)

	if *schemaFile == "" || *indexPath == "" || fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	sch := loadSchema(*schemaFile)
	factory, closeStore := openFactory(ctx, *backend, *indexPath, *driver, *schemaName)
	defer closeStore()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})
	opts := federate.Options{
		Policy:      federate.FailurePolicy(*policy),
		Timeout:     *timeout,
		Parallelism: *parallelism,
		Logger:      &log,
	}

	result, err := vecsql.QueryMulti(ctx, fs.Arg(0), sch, loadParams(*paramsJSON),
		factory, loadRegistry(*routesFile, sch), opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printResult(result, *format)
}

func printResult(result *exec.ExecutionResult, format string) {
	if format == "json" {
		rows := make([]map[string]any, 0, len(result.Rows))
		for _, r := range result.Rows {
			rows = append(rows, r.Values)
		}
		output := map[string]any{"rows": rows, "count": result.Count}
		if d := result.Diagnostics; d != nil {
			diag := map[string]any{"query_id": d.QueryID, "contributed": d.Contributed}
			if len(d.Failed) > 0 {
				failed := make([]map[string]string, 0, len(d.Failed))
				for _, f := range d.Failed {
					failed = append(failed, map[string]string{"collection": f.Collection, "error": f.Err.Error()})
				}
				diag["failed"] = failed
			}
			output["diagnostics"] = diag
		}
		jsonOut, _ := json.Marshal(output)
		fmt.Println(string(jsonOut))
		return
	}

	for _, r := range result.Rows {
		pretty, _ := json.MarshalIndent(r.Values, "", "  ")
		fmt.Println(string(pretty))
	}
	fmt.Printf("\n--- %d rows", result.Count)
	if d := result.Diagnostics; d != nil {
		fmt.Printf(" from %d collections", len(d.Contributed))
		if len(d.Failed) > 0 {
			fmt.Printf(", %d failed", len(d.Failed))
		}
	}
	fmt.Println(" ---")
	if d := result.Diagnostics; d != nil {
		for _, f := range d.Failed {
			fmt.Printf("  failed %s: %v\n", f.Collection, f.Err)
		}
	}
}

// loadRecord is one stdin line for the load command.
type loadRecord struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector"`
}

func handleLoad(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	schemaFile := fs.String("schema", "", "schema JSON file (required)")
	indexPath := fs.String("i", "", "database path or connection string (required)")
	collection := fs.String("c", "", "target collection (required)")
	backend := fs.String("backend", "sqlite", "backend: sqlite or postgres")
	driver := fs.String("driver", "sqlite", "sqlite driver: sqlite (pure Go) or sqlite3 (cgo)")
	schemaName := fs.String("schema-name", "", "PostgreSQL schema name (default: vecsql)")
	fs.Parse(args)

	if *schemaFile == "" || *indexPath == "" || *collection == "" {
		fs.Usage()
		os.Exit(1)
	}

	sch := loadSchema(*schemaFile)
	if _, ok := sch.Collection(*collection); !ok {
		fmt.Printf("Unknown collection: %s\n", *collection)
		os.Exit(1)
	}

	var insert func(context.Context, string, string, map[string]any, []float32) error
	switch *backend {
	case "postgres", "pg":
		name := *schemaName
		if name == "" {
			name = "vecsql"
		}
		store, err := postgres.Open(ctx, *indexPath, name)
		if err != nil {
			fmt.Printf("Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.CreateCollection(ctx, *collection); err != nil {
			fmt.Printf("Error creating collection: %v\n", err)
			os.Exit(1)
		}
		insert = store.Insert
	default:
		store, err := sqlite.OpenWithDriver(ctx, *indexPath, *driver)
		if err != nil {
			fmt.Printf("Error opening sqlite store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.CreateCollection(ctx, *collection); err != nil {
			fmt.Printf("Error creating collection: %v\n", err)
			os.Exit(1)
		}
		insert = store.Insert
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec loadRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			fmt.Printf("Error parsing record: %v\n", err)
			os.Exit(1)
		}
		if err := insert(ctx, *collection, rec.ID, rec.Metadata, rec.Vector); err != nil {
			fmt.Printf("Error inserting record: %v\n", err)
			os.Exit(1)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading stdin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d records into %s\n", count, *collection)
}

func handleREPL(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	schemaFile := fs.String("schema", "", "schema JSON file (required)")
	indexPath := fs.String("i", "", "database path or connection string (required)")
	backend := fs.String("backend", "sqlite", "backend: sqlite or postgres")
	driver := fs.String("driver", "sqlite", "sqlite driver: sqlite (pure Go) or sqlite3 (cgo)")
	schemaName := fs.String("schema-name", "", "PostgreSQL schema name (default: vecsql)")
	routesFile := fs.String("routes", "", "routing rules JSON file")
	policy := fs.String("policy", "best-effort", "failure policy: fail-fast or best-effort")
	fs.Parse(args)

	if *schemaFile == "" || *indexPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	sch := loadSchema(*schemaFile)
	factory, closeStore := openFactory(ctx, *backend, *indexPath, *driver, *schemaName)
	defer closeStore()
	registry := loadRegistry(*routesFile, sch)

	opts := federate.Options{
		Policy:  federate.FailurePolicy(*policy),
		Timeout: 30 * time.Second,
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".vecsql_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Println("vecsql repl. Type .help for commands, .exit to quit.")
	var params planner.Params
	for {
		input, err := line.Prompt("vecsql> ")
		if err != nil {
			fmt.Println()
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == ".exit" || input == ".quit":
			return
		case input == ".help":
			fmt.Println("  .schema             show the loaded schema")
			fmt.Println("  .params <json>      set MATCH vector parameters")
			fmt.Println("  .explain <query>    show the plan without executing")
			fmt.Println("  .exit               quit")
			fmt.Println("  <query>             execute a SELECT")
			continue
		case input == ".schema":
			out, err := sch.ToJSON()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(string(out))
			continue
		case strings.HasPrefix(input, ".params "):
			var p planner.Params
			if err := json.Unmarshal([]byte(strings.TrimPrefix(input, ".params ")), &p); err != nil {
				fmt.Printf("Error parsing params: %v\n", err)
				continue
			}
			params = p
			fmt.Printf("Set %d parameters\n", len(params))
			continue
		case strings.HasPrefix(input, ".explain "):
			node, err := vecsql.Explain(strings.TrimPrefix(input, ".explain "), sch, params)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			out, _ := json.MarshalIndent(node, "", "  ")
			fmt.Println(string(out))
			continue
		case strings.HasPrefix(input, "."):
			fmt.Printf("Unknown command: %s\n", input)
			continue
		}

		result, err := vecsql.QueryMulti(ctx, input, sch, params, factory, registry, opts)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printResult(result, "pretty")
	}
}
