package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests substitute a stub.
type execIface interface {
	Status(ctx context.Context) error
	Pending(ctx context.Context) error
	Failed(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Save(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Pull(ctx context.Context, args []string) error
	Retry(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
	Clear(ctx context.Context) error
	Watch(ctx context.Context) error
	SetSetting(ctx context.Context, args []string) error
	GetSetting(ctx context.Context, args []string) error
	Settings(ctx context.Context) error
}

// runREPL reads one line at a time, treats the first token as the command
// and dispatches. Handler errors are printed, not fatal; the loop exits on
// EOF or "exit"/"quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("sync> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn("Available commands: status, pending, failed, conflicts, save <kind> <id> <json>, delete <kind> <id>, list <kind>, pull [kind], retry, resolve <item-id> [json], clear, watch, set <key> <value>, get <key>, settings, exit")

		case "status":
			err = a.Status(ctx)

		case "pending":
			err = a.Pending(ctx)

		case "failed":
			err = a.Failed(ctx)

		case "conflicts":
			err = a.Conflicts(ctx)

		case "save":
			err = a.Save(ctx, args)

		case "delete", "del":
			err = a.Delete(ctx, args)

		case "l", "list":
			err = a.List(ctx, args)

		case "pull":
			err = a.Pull(ctx, args)

		case "retry":
			err = a.Retry(ctx)

		case "resolve":
			err = a.Resolve(ctx, args)

		case "clear":
			err = a.Clear(ctx)

		case "watch":
			err = a.Watch(ctx)

		case "set":
			err = a.SetSetting(ctx, args)

		case "get":
			err = a.GetSetting(ctx, args)

		case "settings":
			err = a.Settings(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
