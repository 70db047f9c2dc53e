package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// AnalysesClient covers /api/v1/analyses.
type AnalysesClient struct {
	client *Client
}

const analysesPath = "/api/v1/analyses"

// StructureInput is one structure of an AnalyzeRequest. Set either Content
// (with Label) or Accession.
type StructureInput struct {
	Label     string `json:"label,omitempty"`
	Content   string `json:"content,omitempty"`
	Accession string `json:"accession,omitempty"`
}

// AnalyzeRequest starts an analysis. Zero Workers and Cutoff use the server
// defaults.
type AnalyzeRequest struct {
	Structures      []StructureInput `json:"structures"`
	Workers         int              `json:"workers,omitempty"`
	Cutoff          float64          `json:"cutoff,omitempty"`
	BruteForce      bool             `json:"brute_force,omitempty"`
	FirstAltLocOnly bool             `json:"first_altloc_only,omitempty"`
}

// UploadFile is one file of a multipart upload. The server labels the
// structure with Name minus its extension.
type UploadFile struct {
	Name    string
	Content []byte
}

// UploadOptions carries the optional form fields of Upload.
type UploadOptions struct {
	Accessions      []string
	Workers         int
	Cutoff          float64
	BruteForce      bool
	FirstAltLocOnly bool
}

// Summary holds run-wide counters.
type Summary struct {
	Cutoff            float64        `json:"cutoff"`
	Structures        int            `json:"structures"`
	Chains            int            `json:"chains"`
	Atoms             int            `json:"atoms"`
	Interactions      int            `json:"interactions"`
	Intra             int            `json:"intra"`
	Inter             int            `json:"inter"`
	InterfaceResidues int            `json:"interface_residues"`
	ByCategory        map[string]int `json:"by_category"`
}

// ChainMetrics summarises one chain.
type ChainMetrics struct {
	Structure           string `json:"structure"`
	Chain               string `json:"chain"`
	ResidueCount        int    `json:"residue_count"`
	AtomCount           int    `json:"atom_count"`
	InteractingResidues int    `json:"interacting_residues"`
	Intra               int    `json:"intra"`
	Inter               int    `json:"inter"`
}

// AtomRef identifies one interaction endpoint.
type AtomRef struct {
	Structure string `json:"structure"`
	Chain     string `json:"chain"`
	ResName   string `json:"res_name"`
	ResSeq    int    `json:"res_seq"`
	ICode     string `json:"i_code,omitempty"`
	Atom      string `json:"atom"`
	Serial    int    `json:"serial"`
	Element   string `json:"element"`
}

// Interaction is one classified contact.
type Interaction struct {
	A                AtomRef `json:"a"`
	B                AtomRef `json:"b"`
	Distance         float64 `json:"distance"`
	Category         string  `json:"category"`
	IsIntraMolecular bool    `json:"is_intra_molecular"`
}

// ChainPair counts interactions between two chains. A and B are
// "structure:chain" keys.
type ChainPair struct {
	Key struct {
		A string `json:"a"`
		B string `json:"b"`
	} `json:"key"`
	Intra int `json:"intra"`
	Inter int `json:"inter"`
	Total int `json:"total"`
}

// Result is the display form of an analysis. Interactions may be truncated;
// TotalInteractions is always the full count. Interface and Density are kept
// raw, keyed by "structure:chain".
type Result struct {
	Summary           Summary         `json:"summary"`
	Chains            []ChainMetrics  `json:"chains"`
	Interactions      []Interaction   `json:"interactions"`
	TotalInteractions int             `json:"total_interactions"`
	Truncated         bool            `json:"truncated"`
	Interface         json.RawMessage `json:"interface,omitempty"`
	Density           json.RawMessage `json:"density,omitempty"`
	ChainPairs        []ChainPair     `json:"chain_pairs"`
}

// Session is a stored analysis.
type Session struct {
	ID         string    `json:"id"`
	Labels     []string  `json:"labels"`
	Accessions []string  `json:"accessions,omitempty"`
	Cutoff     float64   `json:"cutoff"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	Result     *Result   `json:"result"`
}

// SessionHeader is the listing form of a session.
type SessionHeader struct {
	ID         string    `json:"id"`
	Labels     []string  `json:"labels"`
	Accessions []string  `json:"accessions,omitempty"`
	Summary    Summary   `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionList is one page of headers.
type SessionList struct {
	Sessions   []SessionHeader `json:"sessions"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// Partner is a chain in contact with the queried chain.
type Partner struct {
	Chain string `json:"chain"`
	Intra int    `json:"intra"`
	Inter int    `json:"inter"`
	Total int    `json:"total"`
}

// Download is an exported file.
type Download struct {
	Name        string
	ContentType string
	Body        []byte
	// URL is set when the server also stored the artefact in object storage.
	URL string
}

// Create runs an analysis from inline text and accession codes.
func (a *AnalysesClient) Create(ctx context.Context, req *AnalyzeRequest) (*Session, error) {
	if req == nil || len(req.Structures) == 0 {
		return nil, fmt.Errorf("%w: at least one structure is required", ErrInvalidConfig)
	}
	r, err := jsonRequest(http.MethodPost, analysesPath, req)
	if err != nil {
		return nil, err
	}
	var out Session
	if err := a.client.doJSON(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload runs an analysis from files sent as multipart form data.
func (a *AnalysesClient) Upload(ctx context.Context, files []UploadFile, opts UploadOptions) (*Session, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, err
		}
	}
	for _, code := range opts.Accessions {
		_ = mw.WriteField("accession", code)
	}
	if opts.Workers > 0 {
		_ = mw.WriteField("workers", strconv.Itoa(opts.Workers))
	}
	if opts.Cutoff > 0 {
		_ = mw.WriteField("cutoff", strconv.FormatFloat(opts.Cutoff, 'f', -1, 64))
	}
	if opts.BruteForce {
		_ = mw.WriteField("brute_force", "true")
	}
	if opts.FirstAltLocOnly {
		_ = mw.WriteField("first_altloc_only", "true")
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Session
	err := a.client.doJSON(ctx, &request{
		method:      http.MethodPost,
		path:        analysesPath + "/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one session.
func (a *AnalysesClient) Get(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := a.client.doJSON(ctx, &request{method: http.MethodGet, path: sessionPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List pages through sessions, newest first.
func (a *AnalysesClient) List(ctx context.Context, page, pageSize int) (*SessionList, error) {
	return a.Search(ctx, "", page, pageSize)
}

// Search finds sessions whose labels or accessions match q.
func (a *AnalysesClient) Search(ctx context.Context, q string, page, pageSize int) (*SessionList, error) {
	query := url.Values{}
	if q != "" {
		query.Set("q", q)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	var out SessionList
	if err := a.client.doJSON(ctx, &request{method: http.MethodGet, path: analysesPath, query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a session.
func (a *AnalysesClient) Delete(ctx context.Context, id string) error {
	return a.client.doJSON(ctx, &request{method: http.MethodDelete, path: sessionPath(id)}, nil)
}

// ExportInteractions downloads the interaction table. variant is "all",
// "inter" or "intra"; empty means all.
func (a *AnalysesClient) ExportInteractions(ctx context.Context, id, variant string) (*Download, error) {
	query := url.Values{}
	if variant != "" {
		query.Set("variant", variant)
	}
	return a.download(ctx, &request{method: http.MethodGet, path: sessionPath(id) + "/interactions.csv", query: query})
}

// ExportSummary downloads the Markdown overview of a session.
func (a *AnalysesClient) ExportSummary(ctx context.Context, id string) (*Download, error) {
	return a.download(ctx, &request{method: http.MethodGet, path: sessionPath(id) + "/summary.md"})
}

// ExportStructure downloads the coordinates of one structure of a session.
func (a *AnalysesClient) ExportStructure(ctx context.Context, id, label string) (*Download, error) {
	p := sessionPath(id) + "/structures/" + url.PathEscape(label) + ".pdb"
	return a.download(ctx, &request{method: http.MethodGet, path: p})
}

// Partners lists the chains in contact with structure:chain.
func (a *AnalysesClient) Partners(ctx context.Context, id, structure, chain string) ([]Partner, error) {
	p := fmt.Sprintf("%s/chains/%s/%s/partners", sessionPath(id), url.PathEscape(structure), url.PathEscape(chain))
	var out struct {
		Partners []Partner `json:"partners"`
	}
	if err := a.client.doJSON(ctx, &request{method: http.MethodGet, path: p}, &out); err != nil {
		return nil, err
	}
	return out.Partners, nil
}

func (a *AnalysesClient) download(ctx context.Context, req *request) (*Download, error) {
	resp, err := a.client.send(ctx, req)
	if err != nil {
		return nil, err
	}
	name := path.Base(req.path)
	if _, params, err := mime.ParseMediaType(resp.header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return &Download{
		Name:        name,
		ContentType: resp.header.Get("Content-Type"),
		Body:        resp.body,
		URL:         resp.header.Get("X-Artefact-URL"),
	}, nil
}

func sessionPath(id string) string {
	return analysesPath + "/" + url.PathEscape(id)
}
