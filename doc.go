// Package bibinject converts BibTeX bibliographies into styled HTML
// reference lists and splices them into an existing HTML document at a
// named anchor element, leaving everything else in the document untouched.
//
// # Quick Start
//
// Create a service and run the pipeline:
//
//	svc, err := bibinject.NewService()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := svc.Convert(ctx, bibinject.Input{
//	    BibTeX:   bibText,
//	    Document: htmlText,
//	    AnchorID: "references",
//	    Style:    "default",
//	    Order:    bibinject.OrderDesc,
//	    GroupBy:  "year",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("out.html", []byte(result.Document), 0644)
//
// # Pipeline
//
// The conversion process follows three pure stages:
//
//  1. Parse: BibTeX text to normalized entries (nested brace values,
//     string concatenation, @string macros, LaTeX accent normalization,
//     structured author-name splitting).
//  2. Format: entries plus a named style and ordering/grouping directives
//     to ordered, grouped, rendered HTML reference blocks.
//  3. Inject: a tag-aware, byte-preserving replacement of the anchor
//     element's inner content with the generated fragment.
//
// Each stage may be used on its own via Parse, Formatter.Format, and
// Inject. Structural failures are typed (*ParseError, *FormatError,
// *InjectionError) and wrap sentinel errors for errors.Is matching;
// field-level problems accumulate as FieldWarnings without blocking the
// run.
//
// # Styles
//
// Reference styles are declarative YAML specifications embedded in the
// binary, optionally overridden from a directory via WithStylePath. The
// StyleRegistry enumerates available styles for surrounding tooling.
package bibinject
