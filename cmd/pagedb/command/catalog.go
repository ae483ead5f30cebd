package command

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/cli"
	"github.com/posener/complete"

	"github.com/arrowledge/pagedb/internal/catalog"
)

// CatalogCommand lists the tables registered in a data directory's
// catalog, optionally filtered by name prefix.
type CatalogCommand struct{}

func (c *CatalogCommand) Help() string {
	helpText := `
Usage: pagedb catalog [options] [prefix]

Lists the tables registered in a data directory's catalog. With a
prefix argument, lists only tables whose name starts with it.

Options:

	-config=""	YAML config file (data directory, page size, log level)
	-data=""	Data directory holding the table files and the catalog (overrides -config)
`
	return strings.TrimSpace(helpText)
}

func (c *CatalogCommand) Synopsis() string {
	return "List tables registered in the catalog"
}

func (c *CatalogCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *CatalogCommand) AutocompleteFlags() complete.Flags {
	return complete.Flags{
		"-config": complete.PredictFiles("*.yml"),
		"-data":   complete.PredictDirs("*"),
	}
}

func (c *CatalogCommand) Run(args []string) int {
	var configPath, dataDir string

	flags := flag.NewFlagSet("catalog", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&dataDir, "data", "", "data directory (overrides -config)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	prefix := ""
	if rest := flags.Args(); len(rest) > 0 {
		prefix = rest[0]
	}

	cfg, err := loadConfig(configPath, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err.Error())
		return 1
	}

	cat, err := catalog.Open(cfg.DataDir, cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog: %s\n", err.Error())
		return 1
	}

	for _, name := range cat.ListTablesWithPrefix(prefix) {
		schema, ok := cat.GetSchema(name)
		if !ok {
			continue
		}
		fmt.Printf("%s\troot_page=%d\tcolumns=%d\n", schema.TableName, schema.RootPage, len(schema.Columns))
	}

	return 0
}

var _ cli.Command = (*CatalogCommand)(nil)
var _ cli.CommandAutocomplete = (*CatalogCommand)(nil)
