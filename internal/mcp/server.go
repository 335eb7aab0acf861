package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/a3tai/mcp-form-autofill/internal/config"
	"github.com/a3tai/mcp-form-autofill/internal/descriptions"
	"github.com/a3tai/mcp-form-autofill/internal/form"
	"github.com/a3tai/mcp-form-autofill/internal/intelligence"
	"github.com/a3tai/mcp-form-autofill/internal/overlay"
	pdferrors "github.com/a3tai/mcp-form-autofill/internal/pdf/errors"
	"github.com/a3tai/mcp-form-autofill/internal/pdf/security"
	"github.com/a3tai/mcp-form-autofill/internal/pipeline"
	"github.com/a3tai/mcp-form-autofill/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	processor *pipeline.Processor
	sandbox   *security.Sandbox
	logger    *logrus.Entry
	mcpServer *server.MCPServer

	// stdin and stdout carry the protocol in stdio mode
	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, processor *pipeline.Processor, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	sandbox, err := security.NewSandbox(cfg.DocumentDirectory)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		processor: processor,
		sandbox:   sandbox,
		logger:    logger.WithField("component", "mcp"),
		mcpServer: mcpServer,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolDetectFormFields,
		mcp.WithDescription(descriptions.DetectFormFieldsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to a PDF or form image, relative to the document directory"),
		),
	), s.handleDetectFormFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolClassifyDocument,
		mcp.WithDescription(descriptions.ClassifyDocumentDescription),
		mcp.WithString("path", mcp.Description("Path to a document to classify")),
		mcp.WithString("text", mcp.Description("Raw text to classify when no path is given")),
	), s.handleClassifyDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolFillFormFields,
		mcp.WithDescription(descriptions.FillFormFieldsDescription),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Id returned by detect_form_fields")),
		mcp.WithObject("values", mcp.Description("Field id to value; omitted fields use stored values")),
		mcp.WithString("output_path", mcp.Description("Where to write the filled copy")),
	), s.handleFillFormFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolSetFieldValue,
		mcp.WithDescription(descriptions.SetFieldValueDescription),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("field_id", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
		mcp.WithString("source",
			mcp.Description("Who supplied the value"),
			mcp.Enum(string(store.SourceUser), string(store.SourceAI)),
		),
	), s.handleSetFieldValue)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolTrainClassifier,
		mcp.WithDescription(descriptions.TrainClassifierDescription),
		mcp.WithArray("samples",
			mcp.Required(),
			mcp.Description("Labeled examples"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":          map[string]any{"type": "string"},
					"field_type":    map[string]any{"type": "string"},
					"document_type": map[string]any{"type": "string"},
					"context":       map[string]any{"type": "string"},
					"confidence":    map[string]any{"type": "number"},
				},
			}),
		),
	), s.handleTrainClassifier)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolGetDocument,
		mcp.WithDescription(descriptions.GetDocumentDescription),
		mcp.WithString("document_id", mcp.Required()),
	), s.handleGetDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolListDocuments,
		mcp.WithDescription(descriptions.ListDocumentsDescription),
	), s.handleListDocuments)
}

// documentResponse is the JSON shape of a detected or stored document
type documentResponse struct {
	DocumentID             string                       `json:"document_id"`
	Title                  string                       `json:"title,omitempty"`
	SourcePath             string                       `json:"source_path"`
	Format                 form.DocumentFormat          `json:"format"`
	DocumentType           string                       `json:"document_type"`
	DocumentTypeConfidence float64                      `json:"document_type_confidence"`
	ClassificationMethod   string                       `json:"classification_method,omitempty"`
	Pages                  int                          `json:"pages"`
	Fields                 []map[string]interface{}     `json:"fields"`
	Errors                 []*pdferrors.ProcessingError `json:"errors,omitempty"`
	Notices                []*pdferrors.ProcessingError `json:"notices,omitempty"`
}

func newDocumentResponse(layout *form.DocumentLayout, report *pdferrors.Report) documentResponse {
	resp := documentResponse{
		DocumentID:             layout.ID,
		Title:                  layout.Title,
		SourcePath:             layout.SourcePath,
		Format:                 layout.Format,
		DocumentType:           layout.DocumentType,
		DocumentTypeConfidence: layout.DocumentTypeConfidence,
		ClassificationMethod:   layout.ClassificationMethod,
		Pages:                  len(layout.Pages),
		Fields:                 form.FieldsToMaps(layout.Fields),
	}
	if report != nil {
		resp.Errors = report.Errors
		resp.Notices = report.Notices
	}
	return resp
}

func (s *Server) handleDetectFormFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := s.sandbox.Input(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	layout, report, err := s.processor.Process(ctx, resolved)
	if err != nil {
		s.logger.WithError(err).WithField("path", resolved).Error("Failed to process document")
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(newDocumentResponse(layout, report))
}

func (s *Server) handleClassifyDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("path", "")
	text := request.GetString("text", "")

	var cls intelligence.DocumentClassification
	switch {
	case path != "":
		resolved, err := s.sandbox.Input(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cls, err = s.processor.ClassifyFile(ctx, resolved)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	case text != "":
		cls = s.processor.ClassifyDocument(text)
	default:
		return mcp.NewToolResultError("either path or text is required"), nil
	}
	return jsonResult(cls)
}

func (s *Server) handleFillFormFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var values overlay.Values
	if raw, ok := request.GetArguments()["values"]; ok && raw != nil {
		m, err := cast.ToStringMapE(raw)
		if err != nil {
			return mcp.NewToolResultError("values must be an object of field id to value"), nil
		}
		values = overlay.Values(m)
	}

	layout, err := s.processor.GetDocument(ctx, docID)
	if err != nil {
		return toolError(err), nil
	}

	out := request.GetString("output_path", "")
	if out == "" {
		out = overlay.DefaultOutputPath(layout.SourcePath)
	}
	out, err = s.sandbox.Output(out, layout.SourcePath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	manifest, err := s.processor.FillLayout(ctx, layout, values, out)
	if err != nil {
		s.logger.WithError(err).WithField("document_id", docID).Error("Failed to fill document")
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(manifest)
}

type slotsResponse struct {
	DocumentID     string `json:"document_id"`
	FieldID        string `json:"field_id"`
	UserValue      string `json:"user_value"`
	AIValue        string `json:"ai_value"`
	Enhanced       bool   `json:"enhanced"`
	EffectiveValue string `json:"effective_value"`
}

func (s *Server) handleSetFieldValue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := store.ParseValueSource(request.GetString("source", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slots, err := s.processor.SetFieldValue(ctx, docID, fieldID, value, source)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(slotsResponse{
		DocumentID:     docID,
		FieldID:        fieldID,
		UserValue:      slots.UserValue,
		AIValue:        slots.AIValue,
		Enhanced:       slots.Enhanced,
		EffectiveValue: slots.Effective(),
	})
}

func (s *Server) handleTrainClassifier(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	samples, err := parseSamples(request.GetArguments()["samples"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.processor.Train(ctx, samples)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// parseSamples reads the samples argument as decoded from JSON
func parseSamples(raw interface{}) ([]intelligence.TrainingSample, error) {
	if raw == nil {
		return nil, fmt.Errorf("samples is required")
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("samples must be a list: %w", err)
	}
	samples := make([]intelligence.TrainingSample, 0, len(items))
	for i, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, fmt.Errorf("sample %d must be an object", i)
		}
		conf, err := cast.ToFloat64E(m["confidence"])
		if err != nil && m["confidence"] != nil {
			return nil, fmt.Errorf("sample %d: invalid confidence: %w", i, err)
		}
		samples = append(samples, intelligence.TrainingSample{
			Text:         cast.ToString(m["text"]),
			FieldType:    form.FieldType(cast.ToString(m["field_type"])),
			DocumentType: intelligence.DocumentType(cast.ToString(m["document_type"])),
			Context:      cast.ToString(m["context"]),
			Confidence:   conf,
		})
	}
	return samples, nil
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	layout, err := s.processor.GetDocument(ctx, docID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(newDocumentResponse(layout, nil))
}

func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.processor.ListDocuments(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(docs)
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case errors.Is(err, pipeline.ErrNoStore):
		return mcp.NewToolResultError("document storage is disabled (set store.path)")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Run starts the MCP server in the configured mode and returns when ctx is
// cancelled or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves over stdin/stdout; logs never touch stdout
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.WithField("document_directory", s.sandbox.Root()).Debug("Starting MCP server in stdio mode")

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(s.logger.WriterLevel(logrus.ErrorLevel), "", 0))
	if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over HTTP with server-sent events
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	s.logger.WithFields(logrus.Fields{
		"address":            addr,
		"document_directory": s.sandbox.Root(),
	}).Info("MCP server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info("MCP server stopped")
	return nil
}
