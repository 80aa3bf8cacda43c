package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	bibinject "github.com/alnah/go-bibinject"
)

// run executes one CLI conversion: read the BibTeX and template files, run
// the pipeline, write the output document.
func run(f *cliFlags, svc *bibinject.Service) error {
	if f.listStyles {
		fmt.Println(strings.Join(svc.Registry().Names(), "\n"))
		return nil
	}

	if f.input == "" || f.template == "" || f.output == "" {
		return fmt.Errorf("%w: --input, --template, and an output path are required", ErrMissingArgs)
	}

	bibText, err := os.ReadFile(f.input) // #nosec G304 -- user-provided input path
	if err != nil {
		return fmt.Errorf("reading bibtex file: %w", err)
	}

	htmlText, err := os.ReadFile(f.template) // #nosec G304 -- user-provided input path
	if err != nil {
		return fmt.Errorf("reading template file: %w", err)
	}

	result, err := svc.Convert(context.Background(), bibinject.Input{
		BibTeX:   string(bibText),
		Document: string(htmlText),
		AnchorID: f.targetID,
		Style:    f.refspec,
		Order:    f.order,
		GroupBy:  f.group,
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if err := os.WriteFile(f.output, []byte(result.Document), 0o644); err != nil { // #nosec G306 -- generated HTML is not sensitive
		return fmt.Errorf("writing output file: %w", err)
	}

	fmt.Printf("Injected references saved to %s\n", f.output)
	return nil
}
