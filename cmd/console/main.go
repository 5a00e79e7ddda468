package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/jo-hoe/healsmart/internal/analysis"
	appcfg "github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
	"github.com/jo-hoe/healsmart/internal/llm/provider"
	"github.com/jo-hoe/healsmart/internal/logging"
)

const helpText = `commands:
  analyze <path>    analyze a JPEG or PNG image
  simplify          explain the last analysis simply
  simplify <text>   explain any text simply
  help              show this help
  quit              exit`

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfg, err := appcfg.Load("")
	if err != nil {
		return err
	}
	// Console output belongs to the user; logs go to stderr.
	logger := logging.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx := context.Background()
	client, err := provider.Default().New(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}
	defer func() { _ = llm.Close(client) }()

	rl, err := readline.New("healsmart> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	r := &repl{svc: analysis.New(client, logger), out: rl.Stdout()}
	fmt.Fprintln(r.out, helpText)
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if r.handle(ctx, line) {
			break
		}
	}
	return nil
}

// repl holds the console session: only the latest analysis is kept.
type repl struct {
	svc  *analysis.Service
	out  io.Writer
	last string
}

// handle executes one input line and reports whether the console should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "analyze":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: analyze <path>")
			return false
		}
		text, err := r.svc.AnalyzeFile(ctx, arg)
		if err != nil {
			r.printErr(err)
			return false
		}
		r.last = text
		fmt.Fprintln(r.out, text)
	case "simplify":
		text := arg
		if text == "" {
			if r.last == "" {
				fmt.Fprintln(r.out, "nothing to simplify yet, run analyze <path> first")
				return false
			}
			text = r.last
		}
		out, err := r.svc.Simplify(ctx, text)
		if err != nil {
			r.printErr(err)
			return false
		}
		fmt.Fprintln(r.out, out)
	default:
		fmt.Fprintf(r.out, "unknown command %q\n%s\n", cmd, helpText)
	}
	return false
}

func (r *repl) printErr(err error) {
	switch {
	case errors.Is(err, llm.ErrAuth):
		fmt.Fprintln(r.out, "error: model rejected credentials")
	default:
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
}
