// Package main runs a small interactive demo of the action bridge: an
// in-memory store behind the dispatch facade, with batched renderer
// output printed to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/batch"
	"github.com/goosewobbler/zubridge/internal/bridge"
	"github.com/goosewobbler/zubridge/internal/config"
	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/state"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

type options struct {
	configPath string
	logLevel   string
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.Logging.Level),
		Output: os.Stderr,
		Prefix: "zubridge",
	})

	// Renderer-bound batches just print to stdout in the demo.
	transport := func(_ context.Context, p batch.Payload) (batch.Ack, error) {
		fmt.Printf("batch %s: %d action(s)\n", p.BatchID, len(p.Entries))
		ack := batch.Ack{BatchID: p.BatchID, Results: make(map[string]batch.ActionAck)}
		for _, e := range p.Entries {
			ack.Results[e.ID] = batch.ActionAck{Success: true}
		}
		return ack, nil
	}

	store := state.NewStore(state.State{"counter": float64(0)}, demoReducer)
	b, err := bridge.New(store,
		bridge.WithConfig(cfg),
		bridge.WithLogger(logger),
		bridge.WithMiddleware(bridge.NewLoggingMiddleware(logger)),
		bridge.WithTransport(transport),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer b.Destroy()

	unsub, err := b.Subscribe(nil, func(s state.State) {
		fmt.Printf("state: %v\n", s)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer unsub()

	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, func(next config.Config) {
			logger.SetLevel(log.ParseLevel(next.Logging.Level))
		}, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	fmt.Println("commands: inc, dec, forward <type>, stats, quit")
	return repl(ctx, b, logger)
}

func repl(ctx context.Context, b *bridge.Bridge, logger *log.Logger) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "quit":
				return 0
			case "inc":
				if _, err := b.Dispatch(ctx, "counter/increment").Await(ctx); err != nil {
					logger.Error("dispatch failed: %v", err)
				}
			case "dec":
				if _, err := b.Dispatch(ctx, "counter/decrement").Await(ctx); err != nil {
					logger.Error("dispatch failed: %v", err)
				}
			case "forward":
				if len(fields) < 2 {
					fmt.Println("usage: forward <type>")
					continue
				}
				b.Forward(action.New(fields[1], nil))
			case "stats":
				s := b.Stats()
				fmt.Printf("scheduler: %+v\nprocessor: %+v\n", s.Scheduler, s.Processor)
			default:
				fmt.Printf("unknown command %q\n", fields[0])
			}
		}
	}
}

func demoReducer(s state.State, a action.Action) (state.State, error) {
	next, err := state.Clone(s)
	if err != nil {
		return nil, err
	}
	n, _ := next["counter"].(float64)
	switch a.Type {
	case "counter/increment":
		next["counter"] = n + 1
	case "counter/decrement":
		next["counter"] = n - 1
	}
	return next, nil
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Parse()

	if showVersion {
		fmt.Printf("zubridge %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	if opts.logLevel != "" {
		switch opts.logLevel {
		case "debug", "info", "warn", "error":
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.logLevel)
			os.Exit(1)
		}
	}

	return opts
}
