// Reads, writes and invalidates cached table records from the command line.
//
//	tablecache -config tablecache.yaml get u-1/o-9
//	tablecache -config tablecache.yaml batch-get u-1/o-9 u-1/o-10
//	tablecache -config tablecache.yaml query -limit 20 u-1

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
)

var (
	configPath  = flag.String("config", "tablecache.yaml", "Path to the YAML configuration file.")
	envFiles    = flag.String("env_files", ".env", "Comma separated dotenv files applied over the configuration.")
	logLevel    = flag.String("log_level", "", "Overrides log.level from the configuration.")
	logFormat   = flag.String("log_format", "", "Overrides log.format from the configuration.")
	keySep      = flag.String("key_sep", "/", "Separator between the hash and range parts of a key argument.")
	numericKeys = flag.Bool("numeric_keys", false, "Parse key parts that look like numbers as numbers.")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [args]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.help)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{
		configPath:  *configPath,
		envFiles:    splitList(*envFiles),
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		keySep:      *keySep,
		numericKeys: *numericKeys,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	if err := run(ctx, opts, flag.Args()); err != nil {
		slog.Error("tablecache command failed.", "err", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
