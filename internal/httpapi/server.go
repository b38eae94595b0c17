package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/tyemirov/formrelay/internal/model"
	"github.com/tyemirov/formrelay/internal/service"
	"github.com/tyemirov/formrelay/internal/staging"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultMaxUploadBytes = 50 << 20
	multipartMemoryBytes  = 8 << 20

	formFieldText      = "text"
	formFieldRecipient = "receiverEmail"
	formFieldFiles     = "files"

	healthMessage  = "Server running Successfully!"
	successMessage = "Email sent Successfully"
	failureMessage = "Error Occurred during sending Email"
)

// Stager writes uploaded parts to scratch storage.
type Stager interface {
	Stage(fileHeaders []*multipart.FileHeader, save staging.SaveFunc) ([]model.FileRef, error)
}

// Config captures all inputs required to construct the HTTP server.
type Config struct {
	ListenAddr           string
	AllowedOrigins       []string
	RelayService         service.RelayService
	Stager               Stager
	MaxUploadBytes       int64
	Logger               *slog.Logger
	ReadHeaderTimeout    time.Duration
	ShutdownGraceTimeout time.Duration
}

// Server hosts the health probe and the form relay endpoint.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires Gin, middleware, and handlers for the HTTP API.
func NewServer(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("httpapi: listen address is required")
	}
	if cfg.RelayService == nil {
		return nil, errors.New("httpapi: relay service is required")
	}
	if cfg.Stager == nil {
		return nil, errors.New("httpapi: stager is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("httpapi: logger is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.MaxMultipartMemory = multipartMemoryBytes
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(cfg.Logger))
	engine.Use(buildCORS(cfg.AllowedOrigins))

	engine.GET("/", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"message": healthMessage})
	})

	handler := newRelayHandler(cfg.RelayService, cfg.Stager, cfg.MaxUploadBytes, cfg.Logger)
	engine.POST("/send-email", handler.sendEmail)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: pickDuration(cfg.ReadHeaderTimeout, defaultTimeout),
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		logger:     cfg.Logger,
	}, nil
}

// Start begins serving HTTP traffic.
func (server *Server) Start() error {
	server.logger.Info("http_server_listening", "addr", server.config.ListenAddr)
	err := server.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (server *Server) Shutdown(ctx context.Context) error {
	timeout := pickDuration(server.config.ShutdownGraceTimeout, defaultTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return server.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		started := time.Now()
		contextGin.Next()
		logger.Info(
			"http_request_completed",
			"method", contextGin.Request.Method,
			"path", contextGin.Request.URL.Path,
			"status", contextGin.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

var corsMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodPatch,
	http.MethodPost,
	http.MethodDelete,
}

func buildCORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Requested-With"},
		AllowMethods:     corsMethods,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cors.New(cfg)
	}
	cfg.AllowOrigins = allowedOrigins
	return cors.New(cfg)
}

type relayHandler struct {
	relayService   service.RelayService
	stager         Stager
	maxUploadBytes int64
	logger         *slog.Logger
}

func newRelayHandler(relayService service.RelayService, stager Stager, maxUploadBytes int64, logger *slog.Logger) *relayHandler {
	return &relayHandler{
		relayService:   relayService,
		stager:         stager,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// jsonSubmission is the body accepted when the caller posts application/json.
// JSON submissions carry no attachments.
type jsonSubmission struct {
	Text          string `json:"text"`
	ReceiverEmail string `json:"receiverEmail"`
}

func (handler *relayHandler) sendEmail(contextGin *gin.Context) {
	contextGin.Request.Body = http.MaxBytesReader(contextGin.Writer, contextGin.Request.Body, handler.maxUploadBytes)

	if contextGin.ContentType() == binding.MIMEJSON {
		var body jsonSubmission
		if err := contextGin.ShouldBindJSON(&body); err != nil {
			handler.logger.Warn("json_decode_failed", "error", err)
			handler.writeFailure(contextGin, fmt.Errorf("decode json body: %w", err))
			return
		}
		handler.relay(contextGin, model.Submission{
			Text:            body.Text,
			ReceiverAddress: body.ReceiverEmail,
		})
		return
	}

	multipartForm, err := contextGin.MultipartForm()
	if err != nil {
		handler.logger.Warn("multipart_decode_failed", "error", err)
		handler.writeFailure(contextGin, fmt.Errorf("decode multipart form: %w", err))
		return
	}

	fileRefs, err := handler.stager.Stage(multipartForm.File[formFieldFiles], func(fileHeader *multipart.FileHeader, destination string) error {
		return contextGin.SaveUploadedFile(fileHeader, destination)
	})
	if err != nil {
		handler.logger.Error("upload_staging_failed", "error_kind", model.KindStaging, "error", err)
		handler.writeFailure(contextGin, err)
		return
	}

	handler.relay(contextGin, model.Submission{
		Text:            contextGin.PostForm(formFieldText),
		ReceiverAddress: contextGin.PostForm(formFieldRecipient),
		StagedFiles:     fileRefs,
	})
}

func (handler *relayHandler) relay(contextGin *gin.Context, submission model.Submission) {
	// A disconnecting caller must not abort delivery or cleanup.
	relayContext := context.WithoutCancel(contextGin.Request.Context())
	result := handler.relayService.Relay(relayContext, submission)
	if !result.IsDelivered() {
		contextGin.JSON(http.StatusInternalServerError, gin.H{
			"message": failureMessage,
			"error":   result.ErrorDescription,
		})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"message":  successMessage,
		"response": result.TransportResponse,
	})
}

func (handler *relayHandler) writeFailure(contextGin *gin.Context, err error) {
	contextGin.JSON(http.StatusInternalServerError, gin.H{
		"message": failureMessage,
		"error":   err.Error(),
	})
}

func pickDuration(candidate time.Duration, fallback time.Duration) time.Duration {
	if candidate <= 0 {
		return fallback
	}
	return candidate
}
