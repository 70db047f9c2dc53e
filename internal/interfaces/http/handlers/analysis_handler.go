package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ContactScope/internal/application/analysis"
	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
)

// Request bodies may exceed the raw structure budget by this much to allow
// for JSON escaping and multipart framing.
const bodyOverhead = 1 << 20

const multipartMemory = 32 << 20

// AnalysisHandler serves the /api/v1/analyses resource.
type AnalysisHandler struct {
	svc            analysis.Service
	displayLimit   int
	maxUploadBytes int64
	logger         logging.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(svc analysis.Service, cfg config.AnalysisConfig, logger logging.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		svc:            svc,
		displayLimit:   cfg.DisplayLimit,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes mounts the analysis routes under rg.
func (h *AnalysisHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/analyses")
	g.POST("", h.Create)
	g.POST("/upload", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/interactions.csv", h.ExportInteractions)
	g.GET("/:id/summary.md", h.ExportSummary)
	g.GET("/:id/structures/:file", h.ExportStructure)
	g.GET("/:id/chains/:structure/:chain/partners", h.Partners)
}

// StructureRequest is one entry of CreateAnalysisRequest. Exactly one of
// Content and Accession must be set.
type StructureRequest struct {
	Label     string `json:"label"`
	Content   string `json:"content,omitempty"`
	Accession string `json:"accession,omitempty"`
}

// CreateAnalysisRequest is the body of POST /api/v1/analyses.
type CreateAnalysisRequest struct {
	Structures      []StructureRequest `json:"structures" binding:"required,min=1,dive"`
	Workers         int                `json:"workers" binding:"min=0"`
	Cutoff          float64            `json:"cutoff" binding:"min=0,max=50"`
	BruteForce      bool               `json:"brute_force"`
	FirstAltLocOnly bool               `json:"first_altloc_only"`
}

// PartnersResponse is the body of the partners route.
type PartnersResponse struct {
	Chain    contact.ChainKey       `json:"chain"`
	Partners []repositories.Partner `json:"partners"`
}

// Create handles POST /api/v1/analyses.
func (h *AnalysisHandler) Create(c *gin.Context) {
	h.limitBody(c)
	var req CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailed(c, err)
		return
	}

	input := &analysis.AnalyzeInput{
		Workers:         req.Workers,
		Cutoff:          req.Cutoff,
		BruteForce:      req.BruteForce,
		FirstAltLocOnly: req.FirstAltLocOnly,
	}
	for i, s := range req.Structures {
		switch {
		case s.Content != "" && s.Accession != "":
			writeBadRequest(c, fmt.Sprintf("structures[%d]: content and accession are mutually exclusive", i), nil)
			return
		case s.Accession != "":
			input.Accessions = append(input.Accessions, analysis.AccessionInput{Code: s.Accession, Label: s.Label})
		case s.Content != "":
			if strings.TrimSpace(s.Label) == "" {
				writeBadRequest(c, fmt.Sprintf("structures[%d]: label is required with content", i), nil)
				return
			}
			input.Uploads = append(input.Uploads, analysis.Upload{Label: s.Label, Content: []byte(s.Content)})
		default:
			writeBadRequest(c, fmt.Sprintf("structures[%d]: content or accession is required", i), nil)
			return
		}
	}
	h.run(c, input)
}

// Upload handles POST /api/v1/analyses/upload. Every file part becomes a
// structure labelled by its file name without extension; "accession" fields
// add remote structures.
func (h *AnalysisHandler) Upload(c *gin.Context) {
	h.limitBody(c)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		h.bindFailed(c, err)
		return
	}
	form := c.Request.MultipartForm

	input := &analysis.AnalyzeInput{}
	if err := bindFormOptions(c, input); err != nil {
		writeBadRequest(c, "invalid form option", err)
		return
	}
	for _, field := range []string{"files", "file"} {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				writeBadRequest(c, "cannot read upload", err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				h.bindFailed(c, err)
				return
			}
			input.Uploads = append(input.Uploads, analysis.Upload{Label: labelFromFilename(fh.Filename), Content: data})
		}
	}
	for _, code := range form.Value["accession"] {
		input.Accessions = append(input.Accessions, analysis.AccessionInput{Code: code})
	}
	h.logger.Debug("multipart analysis received",
		logging.Int("files", len(input.Uploads)),
		logging.Int("accessions", len(input.Accessions)),
	)
	h.run(c, input)
}

func (h *AnalysisHandler) run(c *gin.Context, input *analysis.AnalyzeInput) {
	sess, err := h.svc.Analyze(c.Request.Context(), input)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Header("Location", strings.TrimSuffix(c.FullPath(), "/upload")+"/"+sess.ID.String())
	c.JSON(http.StatusCreated, analysis.NewSessionView(sess, h.displayLimit))
}

// Get handles GET /api/v1/analyses/:id.
func (h *AnalysisHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	sess, err := h.svc.GetSession(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis.NewSessionView(sess, h.displayLimit))
}

// List handles GET /api/v1/analyses. q filters by label or accession.
func (h *AnalysisHandler) List(c *gin.Context) {
	page := parsePagination(c)
	var (
		res *analysis.ListResult
		err error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		res, err = h.svc.SearchSessions(c.Request.Context(), q, page)
	} else {
		res, err = h.svc.ListSessions(c.Request.Context(), page)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /api/v1/analyses/:id.
func (h *AnalysisHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if err := h.svc.DeleteSession(c.Request.Context(), id); err != nil {
		writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportInteractions handles GET /api/v1/analyses/:id/interactions.csv.
func (h *AnalysisHandler) ExportInteractions(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	exp, err := h.svc.ExportInteractions(c.Request.Context(), id, c.Query("variant"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeExport(c, exp)
}

// ExportSummary handles GET /api/v1/analyses/:id/summary.md.
func (h *AnalysisHandler) ExportSummary(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	exp, err := h.svc.ExportSummary(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeExport(c, exp)
}

// ExportStructure handles GET /api/v1/analyses/:id/structures/:label.pdb.
func (h *AnalysisHandler) ExportStructure(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	label := strings.TrimSuffix(c.Param("file"), ".pdb")
	if label == "" {
		writeBadRequest(c, "structure label is required", nil)
		return
	}
	exp, err := h.svc.ExportCoordinates(c.Request.Context(), id, label)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeExport(c, exp)
}

// Partners handles GET /api/v1/analyses/:id/chains/:structure/:chain/partners.
func (h *AnalysisHandler) Partners(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	key := contact.ChainKey{Structure: c.Param("structure"), Chain: c.Param("chain")}
	partners, err := h.svc.Partners(c.Request.Context(), id, key)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if partners == nil {
		partners = []repositories.Partner{}
	}
	c.JSON(http.StatusOK, PartnersResponse{Chain: key, Partners: partners})
}

func writeExport(c *gin.Context, exp *analysis.Export) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(exp.Name)))
	if exp.URL != "" {
		c.Header("X-Artefact-URL", exp.URL)
	}
	c.Data(http.StatusOK, exp.ContentType, exp.Body)
}

func (h *AnalysisHandler) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+bodyOverhead)
	}
}

func (h *AnalysisHandler) bindFailed(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		writeAppError(c, errors.New(errors.CodeStructureTooLarge, "request body too large").
			WithDetail(fmt.Sprintf("limit %d bytes", tooLarge.Limit)))
		return
	}
	writeBadRequest(c, "invalid request body", err)
}

type formOptions struct {
	Workers         int     `form:"workers" binding:"min=0"`
	Cutoff          float64 `form:"cutoff" binding:"min=0,max=50"`
	BruteForce      bool    `form:"brute_force"`
	FirstAltLocOnly bool    `form:"first_altloc_only"`
}

func bindFormOptions(c *gin.Context, input *analysis.AnalyzeInput) error {
	var opts formOptions
	if err := c.ShouldBind(&opts); err != nil {
		return err
	}
	input.Workers = opts.Workers
	input.Cutoff = opts.Cutoff
	input.BruteForce = opts.BruteForce
	input.FirstAltLocOnly = opts.FirstAltLocOnly
	return nil
}

func labelFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
