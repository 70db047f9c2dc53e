package reporting

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/pkg/errors"
)

const ContentTypeMarkdown = "text/markdown; charset=utf-8"

// DefaultTopResidues is the number of densest residues listed per chain.
const DefaultTopResidues = 5

const summaryTemplate = `# Contact summary {{.ID}}

| Field | Value |
|---|---|
| Structures | {{join .Labels ", "}} |
| Cutoff | {{angstrom .Summary.Cutoff}} |
| Atoms | {{.Summary.Atoms}} in {{.Summary.Chains}} chains |
| Interactions | {{.Summary.Interactions}} (intra {{.Summary.Intra}}, inter {{.Summary.Inter}}) |
| Interface residues | {{.Summary.InterfaceResidues}} |

## Categories

| Category | Count | Share |
|---|---:|---:|
{{- range .Categories}}
| {{.Name}} | {{.Count}} | {{percent .Count $.Summary.Interactions}} |
{{- end}}
{{if .Chains}}
## Chains

| Chain | Residues | Atoms | Interacting | Intra | Inter |
|---|---:|---:|---:|---:|---:|
{{- range .Chains}}
| {{.Key}} | {{.ResidueCount}} | {{.AtomCount}} | {{.InteractingResidues}} | {{.Intra}} | {{.Inter}} |
{{- end}}
{{end}}
{{- if .Pairs}}
## Chain pairs

| Chain A | Chain B | Intra | Inter | Total |
|---|---|---:|---:|---:|
{{- range .Pairs}}
| {{.Key.A}} | {{.Key.B}} | {{.Intra}} | {{.Inter}} | {{.Total}} |
{{- end}}
{{end}}
{{- if .Hotspots}}
## Hotspot residues
{{range .Hotspots}}
### {{.Chain}}
{{range .Residues}}
- {{.ResName}}{{.ResSeq}}: {{.Total}} contacts (intra {{.Intra}}, inter {{.Inter}})
{{- end}}
{{end}}
{{- end}}`

type categoryRow struct {
	Name  contact.Category
	Count int
}

type hotspot struct {
	Chain    contact.ChainKey
	Residues []contact.DensityEntry
}

type summaryView struct {
	ID         string
	Labels     []string
	Summary    contact.Summary
	Categories []categoryRow
	Chains     []contact.ChainMetrics
	Pairs      []contact.ChainPairSummary
	Hotspots   []hotspot
}

var summaryFuncs = template.FuncMap{
	"join": strings.Join,
	"angstrom": func(v float64) string {
		return FormatDistance(v) + " A"
	},
	"percent": func(n, total int) string {
		if total == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
	},
}

// parsed templates are shared by every render
var summaryCache sync.Map

func parsedTemplate(name, text string) (*template.Template, error) {
	if cached, ok := summaryCache.Load(name); ok {
		return cached.(*template.Template), nil
	}
	t, err := template.New(name).Funcs(summaryFuncs).Parse(text)
	if err != nil {
		return nil, err
	}
	actual, _ := summaryCache.LoadOrStore(name, t)
	return actual.(*template.Template), nil
}

// WriteSummary renders a Markdown overview of res. top bounds the hotspot
// residues listed per chain; zero or less uses DefaultTopResidues.
func WriteSummary(w io.Writer, id string, labels []string, res *contact.AnalysisResult, top int) error {
	if res == nil {
		return errors.New(errors.CodeInternal, "session has no result")
	}
	if top <= 0 {
		top = DefaultTopResidues
	}
	t, err := parsedTemplate("summary.md", summaryTemplate)
	if err != nil {
		return err
	}

	view := summaryView{
		ID:      id,
		Labels:  labels,
		Summary: res.Summary,
		Chains:  res.Chains,
		Pairs:   res.ChainPairs,
	}
	for _, c := range contact.Categories {
		view.Categories = append(view.Categories, categoryRow{Name: c, Count: res.Summary.ByCategory[c]})
	}

	keys := make([]contact.ChainKey, 0, len(res.Density))
	for k, d := range res.Density {
		if len(d) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Structure != keys[j].Structure {
			return keys[i].Structure < keys[j].Structure
		}
		return keys[i].Chain < keys[j].Chain
	})
	for _, k := range keys {
		d := res.Density[k]
		if len(d) > top {
			d = d[:top]
		}
		view.Hotspots = append(view.Hotspots, hotspot{Chain: k, Residues: d})
	}

	return t.Execute(w, view)
}

// SummaryArtefact renders the Markdown summary for session id.
func SummaryArtefact(id string, labels []string, res *contact.AnalysisResult, top int) (*Artefact, error) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, id, labels, res, top); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render summary")
	}
	return &Artefact{
		Name:        id + "/summary.md",
		ContentType: ContentTypeMarkdown,
		Body:        buf.Bytes(),
	}, nil
}
