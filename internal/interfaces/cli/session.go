package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ContactScope/pkg/client"
)

// NewSessionCmd creates the session command group. Every subcommand talks to
// a ContactScope server through the SDK.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and export analyses stored on a server",
	}
	cmd.AddCommand(
		newSessionGetCmd(),
		newSessionExportCmd(),
		newSessionSearchCmd(),
		newSessionDeleteCmd(),
		newSessionPartnersCmd(),
	)
	return cmd
}

func sessionClient(cmd *cobra.Command) (*CLIContext, *client.AnalysesClient, error) {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cc.Client == nil {
		return nil, nil, stderrors.New("no API client configured; pass --server")
	}
	return cc, cc.Client.Analyses(), nil
}

func newSessionGetCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, api, err := sessionClient(cmd)
			if err != nil {
				return err
			}
			sess, err := api.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cc.OutputFormat == OutputJSON {
				return PrintResult(cmd, sess)
			}
			return PrintResult(cmd, &remoteSessionReport{sess: sess, limit: limit})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "interactions listed in text and table output")
	return cmd
}

func newSessionExportCmd() *cobra.Command {
	var (
		variant string
		label   string
		outPath string
		showURL bool
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download the interaction table, a structure or the summary of a session",
		Long: "Without --structure, downloads the interaction table filtered by --variant.\n" +
			"With --structure, downloads that input structure as PDB text.\n" +
			"With --summary, downloads the Markdown overview.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := sessionClient(cmd)
			if err != nil {
				return err
			}
			var dl *client.Download
			switch {
			case summary && label != "":
				return fmt.Errorf("--summary and --structure are mutually exclusive")
			case summary:
				dl, err = api.ExportSummary(cmd.Context(), args[0])
			case label != "":
				dl, err = api.ExportStructure(cmd.Context(), args[0], label)
			default:
				dl, err = api.ExportInteractions(cmd.Context(), args[0], variant)
			}
			if err != nil {
				return err
			}
			return writeDownload(cmd, dl, outPath, showURL)
		},
	}
	f := cmd.Flags()
	f.StringVar(&variant, "variant", "all", "interactions to export: all, inter or intra")
	f.StringVar(&label, "structure", "", "export this structure's coordinates instead")
	f.StringVarP(&outPath, "file", "f", "", "output file or directory (default: stdout)")
	f.BoolVar(&summary, "summary", false, "export the Markdown summary instead")
	f.BoolVar(&showURL, "url", false, "print the stored artefact URL when the server has one")
	return cmd
}

func writeDownload(cmd *cobra.Command, dl *client.Download, outPath string, showURL bool) error {
	if showURL && dl.URL != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), dl.URL)
	}
	if outPath == "" || outPath == "-" {
		_, err := cmd.OutOrStdout().Write(dl.Body)
		return err
	}
	if fi, err := os.Stat(outPath); err == nil && fi.IsDir() {
		outPath = filepath.Join(outPath, filepath.Base(dl.Name))
	}
	if err := os.WriteFile(outPath, dl.Body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	PrintSuccess(cmd, fmt.Sprintf("wrote %d bytes to %s", len(dl.Body), outPath))
	return nil
}

func newSessionSearchCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "List sessions, optionally matching a label or accession",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, api, err := sessionClient(cmd)
			if err != nil {
				return err
			}
			q := ""
			if len(args) == 1 {
				q = strings.TrimSpace(args[0])
			}
			res, err := api.Search(cmd.Context(), q, page, pageSize)
			if err != nil {
				return err
			}
			if cc.OutputFormat == OutputJSON {
				return PrintResult(cmd, res)
			}
			return PrintResult(cmd, &sessionListReport{list: res})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "sessions per page")
	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := sessionClient(cmd)
			if err != nil {
				return err
			}
			if err := api.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			PrintSuccess(cmd, "deleted session "+args[0])
			return nil
		},
	}
}

func newSessionPartnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partners <id> <structure> <chain>",
		Short: "List the chains in contact with one chain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := sessionClient(cmd)
			if err != nil {
				return err
			}
			partners, err := api.Partners(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return PrintResult(cmd, partnerReport(partners))
		},
	}
}

// ---------------------------------------------------------------------------
// Renderers
// ---------------------------------------------------------------------------

type remoteSessionReport struct {
	sess  *client.Session
	limit int
}

func (r *remoteSessionReport) String() string {
	var b strings.Builder
	s := r.sess
	fmt.Fprintf(&b, "Session:       %s\n", s.ID)
	fmt.Fprintf(&b, "Structures:    %s\n", strings.Join(s.Labels, ", "))
	if len(s.Accessions) > 0 {
		fmt.Fprintf(&b, "Accessions:    %s\n", strings.Join(s.Accessions, ", "))
	}
	fmt.Fprintf(&b, "Created:       %s (%s)\n", s.CreatedAt.Format(time.RFC3339), time.Duration(s.DurationMs)*time.Millisecond)
	if s.Result == nil {
		return b.String()
	}
	sum := s.Result.Summary
	fmt.Fprintf(&b, "Cutoff:        %.2f A\n", sum.Cutoff)
	fmt.Fprintf(&b, "Atoms:         %d in %d chains\n", sum.Atoms, sum.Chains)
	fmt.Fprintf(&b, "Interactions:  %d (intra %d, inter %d)\n", sum.Interactions, sum.Intra, sum.Inter)
	fmt.Fprintf(&b, "Interface:     %d residues\n", sum.InterfaceResidues)
	if rows := r.TableRows(); len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatTable(r.TableHeaders(), rows))
		if rest := s.Result.TotalInteractions - len(rows); rest > 0 {
			fmt.Fprintf(&b, "... %d more (use session export for the full table)\n", rest)
		}
	}
	return b.String()
}

func (r *remoteSessionReport) TableHeaders() []string {
	return []string{"Atom A", "Atom B", "Distance", "Category", "Scope"}
}

func (r *remoteSessionReport) TableRows() [][]string {
	if r.sess.Result == nil {
		return nil
	}
	list := r.sess.Result.Interactions
	if r.limit > 0 && len(list) > r.limit {
		list = list[:r.limit]
	}
	rows := make([][]string, 0, len(list))
	for _, it := range list {
		scope := "inter"
		if it.IsIntraMolecular {
			scope = "intra"
		}
		rows = append(rows, []string{
			remoteAtom(it.A), remoteAtom(it.B),
			strconv.FormatFloat(it.Distance, 'f', 3, 64),
			it.Category, scope,
		})
	}
	return rows
}

func remoteAtom(a client.AtomRef) string {
	return fmt.Sprintf("%s:%s %s%d%s %s", a.Structure, a.Chain, a.ResName, a.ResSeq, a.ICode, a.Atom)
}

type sessionListReport struct {
	list *client.SessionList
}

func (r *sessionListReport) String() string {
	if len(r.list.Sessions) == 0 {
		return "No sessions found.\n"
	}
	return FormatTable(r.TableHeaders(), r.TableRows()) +
		fmt.Sprintf("\nPage %d of %d (%d sessions)\n", r.list.Page, r.list.TotalPages, r.list.Total)
}

func (r *sessionListReport) TableHeaders() []string {
	return []string{"ID", "Structures", "Interactions", "Inter", "Created"}
}

func (r *sessionListReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.list.Sessions))
	for _, h := range r.list.Sessions {
		rows = append(rows, []string{
			h.ID,
			truncateString(strings.Join(h.Labels, ","), 40),
			strconv.Itoa(h.Summary.Interactions),
			strconv.Itoa(h.Summary.Inter),
			h.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return rows
}

type partnerReport []client.Partner

func (p partnerReport) String() string {
	if len(p) == 0 {
		return "No partner chains.\n"
	}
	return FormatTable(p.TableHeaders(), p.TableRows())
}

func (p partnerReport) TableHeaders() []string {
	return []string{"Chain", "Intra", "Inter", "Total"}
}

func (p partnerReport) TableRows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, x := range p {
		rows = append(rows, []string{x.Chain, strconv.Itoa(x.Intra), strconv.Itoa(x.Inter), strconv.Itoa(x.Total)})
	}
	return rows
}
