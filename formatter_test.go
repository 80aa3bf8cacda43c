package bibinject

import (
	"errors"
	"strings"
	"testing"
)

func testStyle(t *testing.T) *Style {
	t.Helper()
	return &Style{
		Name: "test",
		Templates: map[string]string{
			"generic": `{{author}}. {{title}}.[[ <i>{{journal}}</i>.]][[ ({{year}}).]]`,
		},
	}
}

func newTestFormatter(t *testing.T, styles ...*Style) *Formatter {
	t.Helper()
	if len(styles) == 0 {
		styles = []*Style{testStyle(t)}
	}
	registry, err := NewStyleRegistryFromStyles(styles...)
	if err != nil {
		t.Fatalf("NewStyleRegistryFromStyles() error = %v", err)
	}
	return NewFormatter(registry)
}

func mustParse(t *testing.T, src string) []*Entry {
	t.Helper()
	entries, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return entries
}

func resultKeys(res *FormatResult) []string {
	var keys []string
	for _, g := range res.Groups {
		for _, ref := range g.References {
			keys = append(keys, ref.Entry.Key)
		}
	}
	return keys
}

func TestFormatSortByYear(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{a, author = {Smith, John}, title = {A}, year = {2019}}
@misc{b, author = {Smith, John}, title = {B}, year = {2021}}
@misc{c, author = {Smith, John}, title = {C}, year = {2020}}
`)

	tests := []struct {
		name  string
		order string
		want  []string
	}{
		{name: "descending", order: OrderDesc, want: []string{"b", "c", "a"}},
		{name: "ascending", order: OrderAsc, want: []string{"a", "c", "b"}},
		{name: "default is descending", order: "", want: []string{"b", "c", "a"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestFormatter(t)
			res, err := f.Format(entries, "test", FormatOptions{Order: tt.order})
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			got := resultKeys(res)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSortTieBreaks(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{z, author = {Zeller, Max}, title = {Z}, year = {2020}}
@misc{a, author = {adams, Ann}, title = {A}, year = {2020}}
@misc{k2, author = {adams, Ann}, title = {K2}, year = {2020}}
@misc{k1, author = {adams, Ann}, title = {K1}, year = {2020}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := resultKeys(res)
	want := []string{"a", "k1", "k2", "z"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestFormatYearlessSortLast(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{old, author = {Smith, John}, title = {Old}, year = {1999}}
@misc{undated, author = {Smith, John}, title = {Undated}}
@misc{new, author = {Smith, John}, title = {New}, year = {2024}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{Order: OrderAsc})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := resultKeys(res)
	want := []string{"old", "new", "undated"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestNumericYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{input: "2020", want: 2020, wantOK: true},
		{input: " 2020 ", want: 2020, wantOK: true},
		{input: "circa 2019", want: 2019, wantOK: true},
		{input: "2019--2021", want: 2019, wantOK: true},
		{input: "forthcoming", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		got, ok := numericYear(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("numericYear(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatGrouping(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@article{a1, author = {Smith, John}, title = {A1}, year = {2021}}
@book{b1, author = {Smith, John}, title = {B1}, year = {2021}}
@article{a2, author = {Smith, John}, title = {A2}, year = {2020}}
@misc{m1, author = {Smith, John}, title = {M1}, year = {2019}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{GroupBy: "year"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	labels := make([]string, 0, len(res.Groups))
	for _, g := range res.Groups {
		labels = append(labels, g.Label)
	}
	want := []string{"2021", "2020", "2019"}
	if strings.Join(labels, ",") != strings.Join(want, ",") {
		t.Errorf("group labels = %v, want %v", labels, want)
	}
	if len(res.Groups[0].References) != 2 {
		t.Errorf("2021 group has %d references, want 2", len(res.Groups[0].References))
	}
}

func TestFormatGroupByAuthorUsesFamily(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{s1, author = {Smith, John and Doe, Jane}, title = {S1}, year = {2020}}
@misc{d1, author = {Doe, Jane}, title = {D1}, year = {2020}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{GroupBy: "author"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	labels := make([]string, 0, len(res.Groups))
	for _, g := range res.Groups {
		labels = append(labels, g.Label)
	}
	want := []string{"Doe", "Smith"}
	if strings.Join(labels, ",") != strings.Join(want, ",") {
		t.Errorf("group labels = %v, want %v", labels, want)
	}
}

func TestFormatUnknownGroup(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{has, author = {Smith, John}, title = {Has}, year = {2020}, venue = {Somewhere}}
@misc{lacks, author = {Smith, John}, title = {Lacks}, year = {2021}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{GroupBy: "venue"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	last := res.Groups[len(res.Groups)-1]
	if last.Label != UnknownGroupLabel {
		t.Errorf("last group label = %q, want %q", last.Label, UnknownGroupLabel)
	}
	if len(last.References) != 1 || last.References[0].Entry.Key != "lacks" {
		t.Errorf("Unknown group = %+v, want the lacks entry", last.References)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Key == "lacks" && w.Field == "venue" {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning recorded for missing group field, warnings = %v", res.Warnings)
	}
}

func TestFormatCrossRef(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@inproceedings{paper, author = {Smith, John}, title = {The Paper}, crossref = {proc}}
@proceedings{proc, journal = {Proc of Things}, year = {2019}}
`)

	style := &Style{
		Name: "test",
		Templates: map[string]string{
			"generic": `{{title}}.[[ {{journal}}.]][[ {{year}}.]]`,
		},
	}
	f := newTestFormatter(t, style)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var paper RenderedReference
	for _, ref := range res.Groups[0].References {
		if ref.Entry.Key == "paper" {
			paper = ref
		}
	}
	if !strings.Contains(paper.HTML, "Proc of Things") {
		t.Errorf("paper did not inherit journal via crossref: %q", paper.HTML)
	}
	if paper.SortKey != "2019" {
		t.Errorf("paper SortKey = %q, want inherited 2019", paper.SortKey)
	}
}

func TestFormatCrossRefMissingTarget(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@inproceedings{paper, author = {Smith, John}, title = {The Paper}, year = {2020}, crossref = {gone}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Key == "paper" && strings.Contains(w.Reason, `"gone"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning for dangling cross-reference, warnings = %v", res.Warnings)
	}
}

func TestFormatCrossRefCycleBounded(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{a, title = {A}, crossref = {b}}
@misc{b, title = {B}, crossref = {a}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w.Reason, "depth bound") {
			found = true
		}
	}
	if !found {
		t.Errorf("cyclic cross-reference did not warn, warnings = %v", res.Warnings)
	}
}

func TestFormatErrors(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `@misc{k, title = {X}, year = {2020}}`)

	t.Run("unknown style", func(t *testing.T) {
		t.Parallel()
		f := newTestFormatter(t)
		_, err := f.Format(entries, "nope", FormatOptions{})
		if !errors.Is(err, ErrUnknownStyle) {
			t.Errorf("Format() error = %v, want ErrUnknownStyle", err)
		}
		var formatErr *FormatError
		if !errors.As(err, &formatErr) || formatErr.Style != "nope" {
			t.Errorf("Format() error = %v, want *FormatError carrying the style name", err)
		}
	})

	t.Run("invalid order", func(t *testing.T) {
		t.Parallel()
		f := newTestFormatter(t)
		_, err := f.Format(entries, "test", FormatOptions{Order: "sideways"})
		if !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("Format() error = %v, want ErrInvalidOrder", err)
		}
	})

	t.Run("no template for type", func(t *testing.T) {
		t.Parallel()
		style := &Style{
			Name:      "narrow",
			Templates: map[string]string{"article": `{{title}}`},
		}
		f := newTestFormatter(t, style)
		_, err := f.Format(entries, "narrow", FormatOptions{})
		if !errors.Is(err, ErrNoTemplate) {
			t.Errorf("Format() error = %v, want ErrNoTemplate", err)
		}
	})
}

func TestRenderConditionalSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		fields   string
		want     string
	}{
		{
			name:     "segment kept when placeholder filled",
			template: `{{title}}[[ ({{year}})]]`,
			fields:   `title = {T}, year = {2020}`,
			want:     "T (2020)",
		},
		{
			name:     "segment dropped when placeholder empty",
			template: `{{title}}[[ ({{year}})]]`,
			fields:   `title = {T}`,
			want:     "T",
		},
		{
			name:     "nested conditional survives outer",
			template: `[[{{volume}}[[({{number}})]]]]`,
			fields:   `title = {T}, volume = {12}, number = {3}`,
			want:     "12(3)",
		},
		{
			name:     "nested conditional dropped alone",
			template: `[[{{volume}}[[({{number}})]]]]`,
			fields:   `title = {T}, volume = {12}`,
			want:     "12",
		},
		{
			name:     "outer dropped when direct placeholder empty",
			template: `[[{{volume}}[[({{number}})]]]]`,
			fields:   `title = {T}, number = {3}`,
			want:     "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			style := &Style{
				Name:      "test",
				Templates: map[string]string{"generic": tt.template},
			}
			f := newTestFormatter(t, style)
			entries := mustParse(t, "@misc{k, "+tt.fields+"}")
			res, err := f.Format(entries, "test", FormatOptions{})
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			got := res.Groups[0].References[0].HTML
			want := `<li class="ref ref-misc" id="ref-k">` + tt.want + `</li>`
			if got != want {
				t.Errorf("HTML = %q, want %q", got, want)
			}
		})
	}
}

func TestRenderEscapesFieldValues(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `@misc{k, title = {Vectors <fast & loose>}, year = {2020}}`)
	style := &Style{
		Name:      "test",
		Templates: map[string]string{"generic": `{{title}}`},
	}
	f := newTestFormatter(t, style)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := res.Groups[0].References[0].HTML
	if !strings.Contains(got, "Vectors &lt;fast &amp; loose&gt;") {
		t.Errorf("field value not escaped: %q", got)
	}
}

func TestRenderTidiesPunctuation(t *testing.T) {
	t.Parallel()

	// Omitted segments leave artifacts like "T. ()." behind.
	style := &Style{
		Name:      "test",
		Templates: map[string]string{"generic": `{{title}}. [[({{year}})]].[[ {{journal}},]] .`},
	}
	entries := mustParse(t, `@misc{k, title = {T}}`)
	f := newTestFormatter(t, style)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := res.Groups[0].References[0].HTML
	want := `<li class="ref ref-misc" id="ref-k">T.</li>`
	if got != want {
		t.Errorf("HTML = %q, want %q", got, want)
	}
}

func TestFormatNames(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{k, author = {Smith, John and Doe, Jane and Roe, Richard}, title = {T}, year = {2020}}
`)

	tests := []struct {
		name  string
		style *Style
		want  string
	}{
		{
			name: "family-given default separators",
			style: &Style{
				Name:      "test",
				Templates: map[string]string{"generic": `{{author}}`},
			},
			want: "Smith, John, Doe, Jane and Roe, Richard",
		},
		{
			name: "given-family order",
			style: &Style{
				Name:      "test",
				Templates: map[string]string{"generic": `{{author}}`},
				NameOrder: "given-family",
			},
			want: "John Smith, Jane Doe and Richard Roe",
		},
		{
			name: "custom separators",
			style: &Style{
				Name:           "test",
				Templates:      map[string]string{"generic": `{{author}}`},
				NameOrder:      "given-family",
				NameSeparator:  "; ",
				FinalSeparator: " &amp; ",
			},
			want: "John Smith; Jane Doe &amp; Richard Roe",
		},
		{
			name: "et al truncation",
			style: &Style{
				Name:      "test",
				Templates: map[string]string{"generic": `{{author}}`},
				EtAlAfter: 2,
			},
			want: "Smith, John et al.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestFormatter(t, tt.style)
			res, err := f.Format(entries, "test", FormatOptions{})
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			got := res.Groups[0].References[0].HTML
			want := `<li class="ref ref-misc" id="ref-k">` + tt.want + `</li>`
			if got != want {
				t.Errorf("HTML = %q, want %q", got, want)
			}
		})
	}
}

func TestFormatDOIIcon(t *testing.T) {
	t.Parallel()

	style := &Style{
		Name:      "test",
		Templates: map[string]string{"generic": `{{title}}[[ <a href="https://doi.org/{{doi}}"><img src="{{doi_icon}}" alt="DOI"></a>]]`},
		DOIIcon:   "/static/doi.svg",
	}
	f := newTestFormatter(t, style)

	t.Run("with doi", func(t *testing.T) {
		t.Parallel()
		entries := mustParse(t, `@misc{k, title = {T}, doi = {10.1000/xyz}}`)
		res, err := f.Format(entries, "test", FormatOptions{})
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		got := res.Groups[0].References[0].HTML
		if !strings.Contains(got, `src="/static/doi.svg"`) {
			t.Errorf("doi_icon not substituted: %q", got)
		}
		if !strings.Contains(got, "10.1000/xyz") {
			t.Errorf("doi not substituted: %q", got)
		}
	})

	t.Run("without doi drops segment", func(t *testing.T) {
		t.Parallel()
		entries := mustParse(t, `@misc{k, title = {T}}`)
		res, err := f.Format(entries, "test", FormatOptions{})
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		got := res.Groups[0].References[0].HTML
		if strings.Contains(got, "doi") {
			t.Errorf("doi segment not dropped: %q", got)
		}
	})
}

func TestFormatMarkdownField(t *testing.T) {
	t.Parallel()

	style := &Style{
		Name:           "test",
		Templates:      map[string]string{"generic": `{{title}}[[<div class="abstract">{{abstract}}</div>]]`},
		MarkdownFields: []string{"abstract"},
	}
	f := newTestFormatter(t, style)
	entries := mustParse(t, `@misc{k, title = {T}, abstract = {Uses *emphasis* and a [link](https://example.com).}}`)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := res.Groups[0].References[0].HTML
	if !strings.Contains(got, "<em>emphasis</em>") {
		t.Errorf("markdown emphasis not rendered: %q", got)
	}
	if !strings.Contains(got, `<a href="https://example.com">link</a>`) {
		t.Errorf("markdown link not rendered: %q", got)
	}
}

func TestFormatMarkdownKeepsCodeWhitespace(t *testing.T) {
	t.Parallel()

	style := &Style{
		Name:           "test",
		Templates:      map[string]string{"generic": `{{title}}.[[ <div class="abstract">{{abstract}}</div>]]`},
		MarkdownFields: []string{"abstract"},
	}
	f := newTestFormatter(t, style)

	// Built directly: the indentation inside the fenced block is the point.
	abstract := "```\nif x:\n        return y\n```"
	entries := []*Entry{{
		Key:    "k",
		Type:   "misc",
		Fields: map[string]string{"title": "T", "abstract": abstract},
		Names:  map[string][]Name{},
	}}

	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	got := res.Groups[0].References[0].HTML
	if !strings.Contains(got, "        return y") {
		t.Errorf("code indentation collapsed: %q", got)
	}
}

func TestFormatGroupByMonthCalendarOrder(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{m, author = {Smith, John}, title = {M}, year = {2020}, month = mar}
@misc{d, author = {Smith, John}, title = {D}, year = {2020}, month = {December}}
@misc{j, author = {Smith, John}, title = {J}, year = {2020}, month = jan}
@misc{n, author = {Smith, John}, title = {N}, year = {2020}}
`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{GroupBy: "month"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	labels := make([]string, 0, len(res.Groups))
	for _, g := range res.Groups {
		labels = append(labels, g.Label)
	}
	want := []string{"January", "March", "December", UnknownGroupLabel}
	if strings.Join(labels, ",") != strings.Join(want, ",") {
		t.Errorf("group labels = %v, want %v", labels, want)
	}
}

func TestMonthIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{input: "January", want: 1, wantOK: true},
		{input: "dec", want: 12, wantOK: true},
		{input: "SEP", want: 9, wantOK: true},
		{input: "7", want: 7, wantOK: true},
		{input: "13", wantOK: false},
		{input: "spring", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		tt := tt
		got, ok := monthIndex(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("monthIndex(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatPropagatesParserWarnings(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `@article{bad, title = {broken
@article{good, author = {Smith, John}, title = {Fine}, year = {2020}}`)

	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("parser warnings not propagated to format result")
	}
	if got := resultKeys(res); len(got) != 2 {
		t.Errorf("rendered %d references, want 2", len(got))
	}
}

func TestFragment(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{a, author = {Smith, John}, title = {A}, year = {2020}}
@misc{b, author = {Doe, Jane}, title = {B}, year = {2019}}
`)
	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	frag := Fragment(res.Groups)
	if !strings.HasPrefix(frag, `<ul class="references">`) {
		t.Errorf("fragment does not start with the list: %q", frag)
	}
	if !strings.HasSuffix(frag, "</ul>") {
		t.Errorf("fragment does not end with </ul>: %q", frag)
	}
	if !strings.Contains(frag, `id="ref-a"`) || !strings.Contains(frag, `id="ref-b"`) {
		t.Errorf("fragment missing reference items: %q", frag)
	}

	// Same input, byte-identical output.
	res2, err := f.Format(entries, "test", FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if frag2 := Fragment(res2.Groups); frag2 != frag {
		t.Error("Fragment() output differs between identical runs")
	}
}

func TestFragmentGroupHeadings(t *testing.T) {
	t.Parallel()

	entries := mustParse(t, `
@misc{a, author = {Smith, John}, title = {A}, year = {2020}}
@misc{b, author = {Doe, Jane}, title = {B}, year = {2019}}
`)
	f := newTestFormatter(t)
	res, err := f.Format(entries, "test", FormatOptions{GroupBy: "year"})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	frag := Fragment(res.Groups)
	if !strings.Contains(frag, "<h2>2020</h2>") || !strings.Contains(frag, "<h2>2019</h2>") {
		t.Errorf("fragment missing group headings: %q", frag)
	}
	if strings.Index(frag, "2020") > strings.Index(frag, "2019") {
		t.Errorf("groups out of order: %q", frag)
	}
}
