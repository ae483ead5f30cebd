package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/mitchellh/cli"

	"github.com/arrowledge/pagedb/cmd/pagedb/command"
)

func main() {
	args := os.Args[1:]

	commands := map[string]cli.CommandFactory{
		"run": func() (cli.Command, error) {
			return &command.RunCommand{}, nil
		},
		"catalog": func() (cli.Command, error) {
			return &command.CatalogCommand{}, nil
		},
	}

	pagedbCLI := &cli.CLI{
		Name:         "pagedb",
		Args:         args,
		Commands:     commands,
		HelpFunc:     cli.BasicHelpFunc("pagedb"),
		Autocomplete: true,
	}

	go watchShutdown()

	exitCode, err := pagedbCLI.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	os.Exit(exitCode)
}

// watchShutdown drains SIGINT so a long-running `run` invocation exits
// cleanly; the VM itself has no cancellation API (spec.md §5), so this
// only governs process teardown, never mid-run cancellation.
func watchShutdown() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt)
	<-signalCh
	os.Exit(130)
}
