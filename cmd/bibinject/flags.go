package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
)

// ErrMissingArgs indicates required CLI inputs were not provided.
var ErrMissingArgs = errors.New("missing required arguments")

// cliFlags holds the parsed command line.
type cliFlags struct {
	config     string
	input      string // BibTeX input file
	template   string // target HTML document
	refspec    string // style name
	targetID   string // anchor element id
	order      string
	group      string
	stylePath  string // directory of custom style specs
	listStyles bool
	web        bool
	addr       string
	verbose    bool
	output     string // positional output path
}

// parseFlags parses args (including the program name at args[0]).
func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{}

	fs := flag.NewFlagSet("bibinject", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "Config file path or name")
	fs.StringVar(&f.input, "input", "", "Path to the BibTeX input file (.bib)")
	fs.StringVar(&f.template, "template", "", "Target HTML file into which references are injected")
	fs.StringVar(&f.refspec, "refspec", "", "Name of the reference style (see --list-styles)")
	fs.StringVar(&f.targetID, "target-id", "", "Id of the element whose content is replaced")
	fs.StringVar(&f.order, "order", "", "Order of entries by year: asc or desc")
	fs.StringVar(&f.group, "group", "", "Optional field name to group entries by (e.g. year)")
	fs.StringVar(&f.stylePath, "styles", "", "Directory of custom style specifications")
	fs.BoolVar(&f.listStyles, "list-styles", false, "List available reference styles and exit")
	fs.BoolVar(&f.web, "web", false, "Start the web interface")
	fs.StringVar(&f.addr, "addr", "", "Web interface listen address")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: bibinject [flags] <output.html>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		f.output = fs.Arg(0)
	}

	return f, nil
}

// mergeConfig applies config defaults underneath explicitly set flags.
func mergeConfig(f *cliFlags, cfg *Config) {
	if f.refspec == "" {
		f.refspec = cfg.Style
	}
	if f.order == "" {
		f.order = cfg.Order
	}
	if f.group == "" {
		f.group = cfg.Group
	}
	if f.targetID == "" {
		f.targetID = cfg.TargetID
	}
	if f.stylePath == "" {
		f.stylePath = cfg.StylePath
	}
	if f.addr == "" {
		f.addr = cfg.Web.Addr
	}
}
