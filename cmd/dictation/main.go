package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eleven-am/dictation/internal/bootstrap"
)

const usage = `usage: dictation <command> [arguments]

commands:
  transcribe <audio>       transcribe a file through the worker or the fallback
  ping                     exit 0 when a worker answers
  status                   print worker reachability as JSON
  supervise -- <cmd> ...   ensure a worker, run cmd, tear the worker down after
  stop                     remove the worker mailboxes
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caller, err := bootstrap.NewCaller(bootstrap.LoadConfig())
	if err != nil {
		fmt.Fprintln(stderr, "dictation:", err)
		return 1
	}
	defer caller.Close()

	switch args[0] {
	case "transcribe":
		return transcribe(ctx, caller, args[1:], stdout, stderr)
	case "ping":
		if caller.Client.Ping(ctx) {
			fmt.Fprintln(stdout, "pong")
			return 0
		}
		fmt.Fprintln(stderr, "no worker answered")
		return 1
	case "status":
		return status(ctx, caller, stdout)
	case "supervise":
		argv := args[1:]
		if len(argv) > 0 && argv[0] == "--" {
			argv = argv[1:]
		}
		return caller.Supervisor().Supervise(ctx, argv)
	case "stop":
		if err := caller.Pair.Purge(ctx); err != nil {
			fmt.Fprintln(stderr, "dictation:", err)
			return 1
		}
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

func transcribe(ctx context.Context, caller *bootstrap.Caller, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 0, "override the request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: dictation transcribe [-timeout d] <audio>")
		return 2
	}
	if *timeout > 0 {
		caller.Config.RequestTimeout = *timeout
	}

	svc, err := caller.Service(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "dictation:", err)
		return 1
	}
	res := svc.TranscribeFile(ctx, fs.Arg(0))
	if !res.OK {
		fmt.Fprintln(stderr, "dictation:", res.Err)
		return 1
	}
	fmt.Fprintln(stdout, res.Text)
	return 0
}

type statusReport struct {
	Reachable bool   `json:"reachable"`
	Alive     bool   `json:"alive"`
	Backend   string `json:"mailbox_backend"`
	Socket    string `json:"socket,omitempty"`
	SocketUp  bool   `json:"socket_reachable,omitempty"`
	PingMs    int64  `json:"ping_ms,omitempty"`
}

func status(ctx context.Context, caller *bootstrap.Caller, stdout io.Writer) int {
	report := statusReport{
		Backend: caller.Config.MailboxBackend,
		Socket:  caller.Config.SocketPath,
	}
	report.Reachable = caller.Client.IsReachable(ctx)
	if report.Reachable {
		start := time.Now()
		report.Alive = caller.Client.Ping(ctx)
		if report.Alive {
			report.PingMs = time.Since(start).Milliseconds()
		}
	}
	if caller.Socket != nil {
		report.SocketUp = caller.Socket.IsReachable(ctx)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Alive {
		return 1
	}
	return 0
}
