package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tft-pipeline/internal/collector"
	"tft-pipeline/internal/config"
	"tft-pipeline/internal/loader"
	"tft-pipeline/internal/notify"
	"tft-pipeline/internal/roster"
	"tft-pipeline/internal/warehouse"
)

// Request bodies are small trigger documents
const maxBodyBytes = 1 << 20

// Ingester runs one ingestion pass
type Ingester interface {
	Run(ctx context.Context, req collector.Request, r roster.Roster) (collector.Summary, error)
}

// Loader runs one load pass
type Loader interface {
	LoadAll(ctx context.Context, req loader.Request) (loader.Result, error)
}

// RosterSource returns the roster for the next run
type RosterSource func() (roster.Roster, error)

// Handler serves the pipeline's HTTP triggers
type Handler struct {
	ingester    Ingester
	loader      Loader
	transformer warehouse.Transformer
	roster      RosterSource
	defaults    config.PipelineConfig
	logger      *zap.Logger
}

// NewHandler creates a handler. defaults fill in whatever a trigger body omits.
func NewHandler(ingester Ingester, ld Loader, transformer warehouse.Transformer, rs RosterSource, defaults config.PipelineConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ingester:    ingester,
		loader:      ld,
		transformer: transformer,
		roster:      rs,
		defaults:    defaults,
		logger:      logger.Named("server"),
	}
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ingestResponse struct {
	Message   string            `json:"message"`
	ProjectID string            `json:"project_id,omitempty"`
	Bucket    string            `json:"bucket_name"`
	Folder    string            `json:"destination_folder"`
	Summary   collector.Summary `json:"summary"`
}

type loadResponse struct {
	Status string        `json:"status"`
	Result loader.Result `json:"result"`
}

// pushEnvelope is the body Pub/Sub push subscriptions POST. Data arrives
// base64 encoded and decodes straight into a byte slice.
type pushEnvelope struct {
	Message *struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
}

// isJSONObject reports whether body looks like a JSON object. null and
// scalars decode into a zero request without error.
func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func methodNotAllowed(c echo.Context) error {
	return c.String(http.StatusMethodNotAllowed, "Method not allowed")
}

func internalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, statusResponse{Status: "error", Message: "internal server error"})
}

// Ingest runs the ingestion pipeline.
// POST /ingest {project_id, bucket_name, destination_folder}
func (h *Handler) Ingest(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}

	body, err := readBody(c)
	if err != nil || !isJSONObject(body) {
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	var req collector.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}
	if req.ProjectID == "" {
		req.ProjectID = h.defaults.ProjectID
	}
	if req.Bucket == "" {
		req.Bucket = h.defaults.Bucket
	}
	if req.Folder == "" {
		req.Folder = h.defaults.Folder
	}
	if req.Bucket == "" {
		return c.String(http.StatusBadRequest, "bucket_name is required")
	}

	r, err := h.roster()
	if err != nil {
		h.logger.Error("failed to load roster", zap.Error(err))
		return internalError(c)
	}

	summary, err := h.ingester.Run(c.Request().Context(), req, r)
	if err != nil {
		h.logger.Error("ingestion failed", zap.String("run_id", summary.RunID), zap.Error(err))
		return internalError(c)
	}

	return c.JSON(http.StatusOK, ingestResponse{
		Message:   "Schedule fetched successfully",
		ProjectID: req.ProjectID,
		Bucket:    req.Bucket,
		Folder:    req.Folder,
		Summary:   summary,
	})
}

// Load rebuilds the staging table from stored raw matches. Accepts a
// Pub/Sub push envelope or a direct JSON body.
// POST /load {project_id, bucket_name, folder_path, bq_table}
func (h *Handler) Load(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}

	body, err := readBody(c)
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	payload := body
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}
	if env.Message != nil {
		payload = env.Message.Data
	}

	var req loader.Request
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.logger.Warn("load trigger payload is not a load request, using defaults", zap.Error(err))
			req = loader.Request{}
		}
	}
	if req.ProjectID == "" {
		req.ProjectID = h.defaults.ProjectID
	}
	if req.Bucket == "" {
		req.Bucket = h.defaults.Bucket
	}
	if req.Folder == "" {
		req.Folder = h.defaults.Folder
	}
	if req.Table == "" {
		req.Table = h.defaults.Table
	}
	if req.Bucket == "" || req.Table == "" {
		return c.JSON(http.StatusBadRequest, statusResponse{Status: "error", Message: "bucket_name and bq_table are required"})
	}

	result, err := h.loader.LoadAll(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("load failed", zap.String("run_id", result.RunID), zap.Error(err))
		return internalError(c)
	}

	return c.JSON(http.StatusOK, loadResponse{Status: "success", Result: result})
}

// Transform runs the post-load transform when a completion event arrives.
// Other messages are acknowledged and ignored.
// POST /transform (Pub/Sub push)
func (h *Handler) Transform(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}

	body, err := readBody(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	var event notify.Event
	if err := json.Unmarshal(env.Message.Data, &event); err != nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	if event.Trigger != notify.TriggerMatchDataReady {
		h.logger.Debug("ignoring message", zap.String("trigger", event.Trigger))
		return c.String(http.StatusOK, "OK")
	}

	h.logger.Info("running transform step", zap.String("message_id", env.Message.MessageID))
	if err := h.transformer.Run(c.Request().Context()); err != nil {
		h.logger.Error("transform failed", zap.Error(err))
		return internalError(c)
	}
	return c.String(http.StatusOK, "OK")
}

// TransformManual runs the transform unconditionally.
// POST /transform/manual
func (h *Handler) TransformManual(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}

	if err := h.transformer.Run(c.Request().Context()); err != nil {
		h.logger.Error("manual transform failed", zap.Error(err))
		return internalError(c)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Manual transform complete"})
}
