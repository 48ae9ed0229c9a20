// Package api serves the answer engine over HTTP.
package api

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/glimpse/internal/inference"
	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/metrics"
	"github.com/samcharles93/glimpse/internal/webui"
)

// Answerer is the engine operation the server exposes.
type Answerer interface {
	Ask(ctx context.Context, img image.Image, question string, stream inference.StreamFunc) (*inference.Result, error)
}

type Config struct {
	Engine  Answerer
	Store   *AnswerStore
	Logger  logger.Logger
	Metrics *metrics.Metrics

	// RateLimit is the sustained POST /v1/answers rate per second; zero
	// disables limiting. RateBurst defaults to 1.
	RateLimit float64
	RateBurst int

	MaxBodyBytes int64
	WriteTimeout time.Duration
}

type Server struct {
	engine       Answerer
	store        *AnswerStore
	log          logger.Logger
	metrics      *metrics.Metrics
	limiter      *rate.Limiter
	maxBody      int64
	writeTimeout time.Duration
	clock        func() time.Time
}

func NewServer(cfg Config) *Server {
	s := &Server{
		engine:       cfg.Engine,
		store:        cfg.Store,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		maxBody:      cfg.MaxBodyBytes,
		writeTimeout: cfg.WriteTimeout,
		clock:        time.Now,
	}
	if s.store == nil {
		s.store = NewAnswerStore(0)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.maxBody == 0 {
		s.maxBody = 32 << 20
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/answers", s.handleCreateAnswer, s.rateLimit)
	e.GET("/v1/answers/:id", s.handleGetAnswer)
	e.DELETE("/v1/answers/:id", s.handleDeleteAnswer)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/*", echo.WrapHandler(webui.Handler()))
}

func (s *Server) handleCreateAnswer(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured")
	}
	in, err := parseAnswerRequest(c, s.maxBody)
	if err != nil {
		return writeFailure(c, err)
	}
	if err := inference.ValidateQuestion(in.question); err != nil {
		return writeBadRequest(c, "question: "+err.Error())
	}

	ans := Answer{
		ID:        newAnswerID(),
		Object:    "answer",
		CreatedAt: s.clock().Unix(),
		Status:    statusInProgress,
		Question:  in.question,
	}
	log := s.log.With("answer_id", ans.ID)

	var (
		writer *SSEStreamWriter
		stream inference.StreamFunc
	)
	if in.stream {
		writer, err = NewSSEStreamWriter(c, s.writeTimeout)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		if err := writer.Begin(ans); err != nil {
			return nil
		}
		stream = writer.EmitDelta
	}

	res, err := s.engine.Ask(c.Request().Context(), in.img, in.question, stream)
	if err != nil {
		log.Warn("answer failed", "error", err)
		if writer != nil {
			_ = writer.Failed(ans, err)
			return nil
		}
		return writeFailure(c, err)
	}

	ans.Status = statusCompleted
	ans.Answer = res.Answer
	ans.Stats = &res.Stats

	if writer != nil {
		if err := writer.Err(); err != nil {
			log.Debug("client went away during stream", "error", err)
			return nil
		}
		s.store.Save(ans)
		_ = writer.Complete(ans)
		return nil
	}
	s.store.Save(ans)
	return c.JSON(http.StatusOK, ans)
}

func (s *Server) handleGetAnswer(c *echo.Context) error {
	ans, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "answer not found")
	}
	return c.JSON(http.StatusOK, ans)
}

func (s *Server) handleDeleteAnswer(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "answer not found")
	}
	return c.JSON(http.StatusOK, DeletedAnswer{ID: id, Object: "answer.deleted", Deleted: true})
}

func (s *Server) handleHealth(c *echo.Context) error {
	body := map[string]any{"status": "ok"}
	if e, ok := s.engine.(interface{ Info() inference.Info }); ok {
		info := e.Info()
		body["backend"] = info.Backend
		body["device"] = info.Device
		body["vocab_size"] = info.VocabSize
	}
	return c.JSON(http.StatusOK, body)
}
