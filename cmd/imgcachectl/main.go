// imgcachectl is an interactive CLI for exercising an imgcache Coordinator
// against a directory on disk.
//
// Usage:
//
//	imgcachectl [--dir <cache-dir>] [--config <file>]
//
// Commands (in REPL):
//
//	get <key> <text> [content-type]   GetOrCreate; <text> is the producer payload
//	stat <key>                        Show path derivation for a key, without reading
//	close                             Await all pending background flushes
//	help                              Show this help
//	exit / quit / q                   Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calvinalkan/imgcache"
	"github.com/calvinalkan/imgcache/cleanup"
	"github.com/calvinalkan/imgcache/config"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("imgcachectl", flag.ExitOnError)

	dir := fs.StringP("dir", "d", "", "cache directory (default: ./imgcachectl-data)")
	configPath := fs.StringP("config", "c", "", "HuJSON config file (default: built-in defaults)")
	maxBytes := fs.Int64P("max-used-bytes", "m", 256*1024*1024, "in-memory manager's eviction budget, in bytes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: imgcachectl [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cacheDir := *dir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "imgcachectl-data")
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	cfg := config.DefaultConfig()

	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	paths := cleanup.NewSHA256PathBuilder(cacheDir)

	var evicted int
	mgr := cleanup.NewInMemoryManager(*maxBytes, func(e cleanup.Entry) {
		evicted++
	})

	coord := imgcache.New(cfg, paths, mgr)

	repl := &REPL{
		coord:    coord,
		paths:    paths,
		cacheDir: cacheDir,
		evicted:  &evicted,
	}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	coord    *imgcache.Coordinator
	paths    *cleanup.SHA256PathBuilder
	cacheDir string
	evicted  *int
	liner    *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".imgcachectl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("imgcachectl - cache dir %s\n", r.cacheDir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("imgcachectl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "get":
			r.cmdGet(args)

		case "stat":
			r.cmdStat(args)

		case "close":
			r.cmdClose()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"get", "stat", "close", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get <key> <text> [content-type]   GetOrCreate; <text> becomes the produced bytes on a miss")
	fmt.Println("  stat <key>                         Show on-disk path derivation for a key")
	fmt.Println("  close                              Await all pending background flushes")
	fmt.Println("  help                               Show this help")
	fmt.Println("  exit / quit / q                    Exit")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: get <key> <text> [content-type]")

		return
	}

	key := []byte(args[0])
	payload := []byte(args[1])

	contentType := "application/octet-stream"
	if len(args) >= 3 {
		contentType = args[2]
	}

	producer := func(context.Context) ([]byte, string, error) {
		return payload, contentType, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := r.coord.GetOrCreate(ctx, key, producer)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	body, err := io.ReadAll(res.Reader)
	if err != nil {
		fmt.Printf("Error reading body: %v\n", err)

		return
	}

	fmt.Printf("Detail:       %s\n", res.Detail)
	fmt.Printf("Content-Type: %s\n", res.ContentType)
	fmt.Printf("Body:         %q\n", body)
}

func (r *REPL) cmdStat(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: stat <key>")

		return
	}

	entry := r.paths.Derive([]byte(args[0]))

	fmt.Printf("StringKey:    %s\n", entry.StringKey)
	fmt.Printf("PhysicalPath: %s\n", entry.PhysicalPath)
	fmt.Printf("RelativePath: %s\n", entry.RelativePath)

	if _, err := os.Stat(entry.PhysicalPath); err == nil {
		fmt.Println("On disk:      yes")
	} else {
		fmt.Println("On disk:      no")
	}
}

func (r *REPL) cmdClose() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.coord.Close(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: all background flushes settled (%d evictions so far)\n", *r.evicted)
}
