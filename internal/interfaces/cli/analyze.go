package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/ContactScope/internal/application/analysis"
	"github.com/turtacn/ContactScope/internal/application/reporting"
	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/fetch/rcsb"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
)

type analyzeOptions struct {
	accessions  []string
	workers     int
	cutoff      float64
	bruteForce  bool
	firstAltLoc bool
	csvPath     string
	variant     string
	pdbOut      string
	limit       int
}

// NewAnalyzeCmd creates the analyze command. It runs the engine in-process
// against local files and archive accession codes; no server is involved.
func NewAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [files...]",
		Short: "Detect and classify interatomic contacts locally",
		Long: "Parse the given PDB files (plain or gzip) and any --accession codes, find\n" +
			"every atom pair within the cutoff and print the summary. Each file is\n" +
			"labelled by its name without extension.",
		Example: "  contactscope analyze 1abc.pdb 2xyz.pdb --csv contacts.csv --variant inter\n" +
			"  contactscope analyze --accession 4HHB -o table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.accessions, "accession", nil, "archive accession code to download (repeatable)")
	f.IntVar(&opts.workers, "workers", 0, "detector worker count (default from config)")
	f.Float64Var(&opts.cutoff, "cutoff", 0, "distance cutoff in Angstrom (default from config)")
	f.BoolVar(&opts.bruteForce, "brute-force", false, "use the all-pairs reference detector")
	f.BoolVar(&opts.firstAltLoc, "first-altloc", false, "keep only blank or first alternate locations")
	f.StringVar(&opts.csvPath, "csv", "", "write the interaction table to this file (- for stdout)")
	f.StringVar(&opts.variant, "variant", string(reporting.VariantAll), "interactions in --csv: all, inter or intra")
	f.StringVar(&opts.pdbOut, "pdb-out", "", "write each parsed structure to this directory")
	f.IntVar(&opts.limit, "limit", 20, "interactions listed in text and table output (0 for none)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts *analyzeOptions) error {
	if len(args) == 0 && len(opts.accessions) == 0 {
		return fmt.Errorf("at least one file or --accession is required")
	}
	if _, err := reporting.ParseVariant(opts.variant); err != nil {
		return fmt.Errorf("invalid --variant %q: expected all, inter or intra", opts.variant)
	}
	if opts.cutoff < 0 || opts.workers < 0 {
		return fmt.Errorf("--cutoff and --workers must not be negative")
	}

	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	svc, err := cc.analyzer()
	if err != nil {
		return err
	}

	input := &analysis.AnalyzeInput{
		Cutoff:          opts.cutoff,
		Workers:         opts.workers,
		BruteForce:      opts.bruteForce,
		FirstAltLocOnly: opts.firstAltLoc,
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		input.Uploads = append(input.Uploads, analysis.Upload{Label: labelFromPath(path), Content: data})
	}
	for _, code := range opts.accessions {
		input.Accessions = append(input.Accessions, analysis.AccessionInput{Code: code})
	}

	ctx := cmd.Context()
	sess, err := svc.Analyze(ctx, input)
	if err != nil {
		return err
	}
	cc.Logger.Debug("analysis finished",
		logging.String("session_id", sess.ID.String()),
		logging.Duration("took", sess.Duration),
	)

	if opts.pdbOut != "" {
		if err := os.MkdirAll(opts.pdbOut, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", opts.pdbOut, err)
		}
		for _, label := range sess.Labels {
			exp, err := svc.ExportCoordinates(ctx, sess.ID, label)
			if err != nil {
				return err
			}
			dst := filepath.Join(opts.pdbOut, label+".pdb")
			if err := os.WriteFile(dst, exp.Body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", dst, err)
			}
		}
	}

	if opts.csvPath != "" {
		exp, err := svc.ExportInteractions(ctx, sess.ID, opts.variant)
		if err != nil {
			return err
		}
		if opts.csvPath == "-" {
			_, err = cmd.OutOrStdout().Write(exp.Body)
			return err
		}
		if err := os.WriteFile(opts.csvPath, exp.Body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.csvPath, err)
		}
	}

	if cc.OutputFormat == OutputJSON {
		return PrintResult(cmd, analysis.NewSessionView(sess, cc.Config.Analysis.DisplayLimit))
	}
	return PrintResult(cmd, &analysisReport{sess: sess, limit: opts.limit})
}

// analyzer returns the in-process service, building one backed by a
// single-slot memory repository on first use.
func (cc *CLIContext) analyzer() (analysis.Service, error) {
	if cc.Analyzer != nil {
		return cc.Analyzer, nil
	}
	svc, err := analysis.NewService(analysis.Dependencies{
		Repository: session.NewMemoryRepository(1),
		Fetcher:    rcsb.NewClient(cc.Config.Fetch, cc.Logger, rcsb.WithMaxBytes(cc.Config.Fetch.MaxBytes)),
		Logger:     cc.Logger,
	}, analysis.Options{Analysis: cc.Config.Analysis, Source: "contactscope-cli"})
	if err != nil {
		return nil, err
	}
	cc.Analyzer = svc
	return svc, nil
}

// labelFromPath strips the directory and up to two extensions so that
// "x/1abc.pdb.gz" becomes "1abc".
func labelFromPath(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(base), ".gz") {
		base = base[:len(base)-3]
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// analysisReport renders a session for text and table output.
type analysisReport struct {
	sess  *session.Session
	limit int
}

func (r *analysisReport) String() string {
	res := r.sess.Result
	sum := res.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "Session:       %s\n", r.sess.ID)
	fmt.Fprintf(&b, "Structures:    %s\n", strings.Join(r.sess.Labels, ", "))
	fmt.Fprintf(&b, "Cutoff:        %.2f A\n", sum.Cutoff)
	fmt.Fprintf(&b, "Atoms:         %d in %d chains\n", sum.Atoms, sum.Chains)
	fmt.Fprintf(&b, "Interactions:  %s (intra %d, inter %d)\n",
		color.New(color.Bold).Sprint(sum.Interactions), sum.Intra, sum.Inter)
	fmt.Fprintf(&b, "Interface:     %d residues\n", sum.InterfaceResidues)

	b.WriteString("\nBy category:\n")
	for _, c := range contact.Categories {
		if n := sum.ByCategory[c]; n > 0 {
			fmt.Fprintf(&b, "  %-15s %d\n", c, n)
		}
	}

	if len(res.Chains) > 0 {
		b.WriteString("\nChains:\n")
		rows := make([][]string, 0, len(res.Chains))
		for _, m := range res.Chains {
			rows = append(rows, []string{
				m.Key().String(),
				strconv.Itoa(m.ResidueCount),
				strconv.Itoa(m.AtomCount),
				strconv.Itoa(m.InteractingResidues),
				strconv.Itoa(m.Intra),
				strconv.Itoa(m.Inter),
			})
		}
		b.WriteString(FormatTable([]string{"Chain", "Residues", "Atoms", "Interacting", "Intra", "Inter"}, rows))
	}

	if len(res.ChainPairs) > 0 {
		b.WriteString("\nChain pairs:\n")
		rows := make([][]string, 0, len(res.ChainPairs))
		for _, p := range res.ChainPairs {
			rows = append(rows, []string{
				p.Key.A.String(), p.Key.B.String(),
				strconv.Itoa(p.Intra), strconv.Itoa(p.Inter), strconv.Itoa(p.Total),
			})
		}
		b.WriteString(FormatTable([]string{"Chain A", "Chain B", "Intra", "Inter", "Total"}, rows))
	}

	if r.limit > 0 && len(res.Interactions) > 0 {
		b.WriteString("\nInteractions:\n")
		b.WriteString(FormatTable(r.TableHeaders(), r.TableRows()))
		if rest := len(res.Interactions) - r.limit; rest > 0 {
			fmt.Fprintf(&b, "... %d more (use --csv for the full table)\n", rest)
		}
	}
	return b.String()
}

func (r *analysisReport) TableHeaders() []string {
	return []string{"Atom A", "Atom B", "Distance", "Category", "Scope"}
}

func (r *analysisReport) TableRows() [][]string {
	list := r.sess.Result.Interactions
	if r.limit > 0 && len(list) > r.limit {
		list = list[:r.limit]
	}
	rows := make([][]string, 0, len(list))
	for i := range list {
		it := &list[i]
		scope := "inter"
		if it.IsIntraMolecular {
			scope = "intra"
		}
		rows = append(rows, []string{
			formatAtomRef(it.A),
			formatAtomRef(it.B),
			reporting.FormatDistance(it.Distance),
			string(it.Category),
			scope,
		})
	}
	return rows
}

func formatAtomRef(a contact.AtomRef) string {
	return fmt.Sprintf("%s:%s %s%d%s %s", a.Structure, a.Chain, a.ResName, a.ResSeq, a.ICode, a.Atom)
}
