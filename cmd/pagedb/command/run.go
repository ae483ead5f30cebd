package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/cli"
	"github.com/posener/complete"

	"github.com/arrowledge/pagedb/internal/catalog"
	"github.com/arrowledge/pagedb/internal/vm"
)

// RunCommand executes a JSON opcode program against a data directory and
// prints the emitted rows.
type RunCommand struct{}

func (c *RunCommand) Help() string {
	helpText := `
Usage: pagedb run [options] <program.json>

Executes a compiled opcode program against a data directory and prints
the emitted result set as JSON.

Options:

	-config=""	YAML config file (data directory, page size, log level)
	-data=""	Data directory holding the table files and the catalog (overrides -config)
`
	return strings.TrimSpace(helpText)
}

func (c *RunCommand) Synopsis() string {
	return "Run a compiled opcode program"
}

func (c *RunCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictFiles("*.json")
}

func (c *RunCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{
		"-config": complete.PredictFiles("*.yml"),
		"-data":   complete.PredictDirs("*"),
	}
}

func (c *RunCommand) Run(args []string) int {
	var configPath, dataDir string

	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&dataDir, "data", "", "data directory (overrides -config)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	rest := flags.Args()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one program file argument")
		return 1
	}

	cfg, err := loadConfig(configPath, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err.Error())
		return 1
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading program file: %s\n", err.Error())
		return 1
	}

	program, err := vm.ParseProgram(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing program: %s\n", err.Error())
		return 1
	}

	logger := cfg.Logger()

	cat, err := catalog.Open(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog: %s\n", err.Error())
		return 1
	}

	machine := vm.New(cfg.DataDir, cat, program, logger)
	output, err := machine.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %s\n", err.Error())
		return 1
	}

	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %s\n", err.Error())
		return 1
	}

	fmt.Println(string(encoded))
	return 0
}

var _ cli.Command = (*RunCommand)(nil)
var _ cli.CommandAutocomplete = (*RunCommand)(nil)
