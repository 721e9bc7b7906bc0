// Package server exposes the turn pipeline and the media helpers over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smart-librarian/server/internal/librarian/graph"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/media"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         int    `envconfig:"HTTP_PORT" default:"8080"`
	Debug        bool   `envconfig:"HTTP_DEBUG" default:"false"`
	StaticDir    string `envconfig:"STATIC_DIR" default:"static"`
	ReadTimeout  int    `envconfig:"HTTP_READ_TIMEOUT" default:"30"`
	WriteTimeout int    `envconfig:"HTTP_WRITE_TIMEOUT" default:"300"`
}

// AuditReader serves the diagnostics view over the turn audit trail.
type AuditReader interface {
	Recent(ctx context.Context, day time.Time, n int) ([]model.TurnRecord, error)
	Count(ctx context.Context, day time.Time) (int, error)
}

// Server wires the pipeline runner and media client behind gin.
type Server struct {
	runner graph.Runner
	media  *media.Client
	audit  AuditReader

	engine     *gin.Engine
	httpServer *http.Server
	imgDir     string
}

// New builds the server and registers all routes. audit may be nil, which
// leaves the diagnostics route unregistered.
func New(cfg Config, runner graph.Runner, mediaClient *media.Client, audit AuditReader) (*Server, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	imgDir := filepath.Join(cfg.StaticDir, "gen")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		runner: runner,
		media:  mediaClient,
		audit:  audit,
		engine: engine,
		imgDir: imgDir,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
	}

	engine.GET("/healthz", s.handleHealth)
	engine.POST("/chat", s.handleChat)
	engine.POST("/tts", s.handleTTS)
	engine.POST("/stt", s.handleSTT)
	engine.POST("/image", s.handleImage)
	engine.Static("/static", cfg.StaticDir)
	if audit != nil {
		engine.GET("/audit", s.handleAudit)
	}

	return s, nil
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	logx.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one turn. The runner is total, so this handler always
// answers 200 with a reply string.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	res := s.runner.HandleTurn(c.Request.Context(), model.TurnInput{
		Message: strings.TrimSpace(req.Message),
	})
	c.JSON(http.StatusOK, res)
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTTS(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.Data(http.StatusOK, "audio/mpeg", nil)
		return
	}

	mp3, err := s.media.Speech(c.Request.Context(), text)
	if err != nil {
		logx.Error().Err(err).Msg("TTS failed")
		c.String(http.StatusInternalServerError, "TTS error")
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", mp3)
}

func (s *Server) handleSTT(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"text": ""})
		return
	}
	defer func() { _ = file.Close() }()

	text, err := s.media.Transcribe(c.Request.Context(), header.Filename, file)
	if err != nil {
		logx.Error().Err(err).Msg("STT failed")
		c.JSON(http.StatusInternalServerError, gin.H{"text": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// handleAudit reports the recorded turns for one UTC day. Diagnostics only:
// nothing here ever feeds back into a prompt.
func (s *Server) handleAudit(c *gin.Context) {
	day := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return
		}
		day = parsed
	}
	n := 20
	if v := c.Query("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}

	count, err := s.audit.Count(c.Request.Context(), day)
	if err != nil {
		logx.Error().Err(err).Msg("audit count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit_unavailable"})
		return
	}
	turns, err := s.audit.Recent(c.Request.Context(), day, n)
	if err != nil {
		logx.Error().Err(err).Msg("audit read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":  day.Format("2006-01-02"),
		"count": count,
		"turns": turns,
	})
}

type imageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

// handleImage renders an image and serves it from the static dir.
func (s *Server) handleImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_prompt"})
		return
	}

	png, err := s.media.GenerateImage(c.Request.Context(), prompt, req.Size, req.Quality)
	if err != nil {
		logx.Error().Err(err).Msg("image generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_gen_failed"})
		return
	}

	filename := uuid.New().String() + ".png"
	if err := os.WriteFile(filepath.Join(s.imgDir, filename), png, 0o644); err != nil {
		logx.Error().Err(err).Msg("failed to save generated image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_gen_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": "/static/gen/" + filename})
}
