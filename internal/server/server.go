package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stakesim/internal/metrics"
	"stakesim/internal/simulation"
)

type Config struct {
	Simulation  simulation.Config
	Seed        int64
	AlphaMin    float64
	AlphaMax    float64
	CORSOrigins []string
	Logger      zerolog.Logger
}

// Server exposes a single simulation to an external controller over HTTP.
// Requests are serialized so steps never overlap.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	router *gin.Engine

	mu        sync.Mutex
	sim       *simulation.Simulation
	episodeID string
	started   time.Time
}

type resetRequest struct {
	Seed *int64 `json:"seed"`
}

type stepRequest struct {
	Alpha *float64 `json:"alpha"`
}

type resetResponse struct {
	EpisodeID   string                 `json:"episode_id"`
	Observation simulation.Observation `json:"observation"`
	Info        simulation.Info        `json:"info"`
}

type stepResponse struct {
	EpisodeID string `json:"episode_id"`
	simulation.StepResult
}

type stateResponse struct {
	EpisodeID            string                 `json:"episode_id"`
	Seed                 int64                  `json:"seed"`
	Rebalancer           string                 `json:"rebalancer"`
	Observation          simulation.Observation `json:"observation"`
	Info                 simulation.Info        `json:"info"`
	Terminated           bool                   `json:"terminated"`
	LastHonestProportion float64                `json:"last_honest_proportion"`
}

func New(cfg Config) (*Server, error) {
	if math.IsNaN(cfg.AlphaMin) || math.IsNaN(cfg.AlphaMax) || cfg.AlphaMin > cfg.AlphaMax {
		return nil, fmt.Errorf("invalid alpha range [%v, %v]", cfg.AlphaMin, cfg.AlphaMax)
	}
	sim, err := simulation.New(cfg.Simulation, cfg.Seed)
	if err != nil {
		return nil, err
	}

	metrics.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(RequestMetrics())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger,
		router:    r,
		sim:       sim,
		episodeID: uuid.NewString(),
		started:   time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("server stopped")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/v1")
	v1.POST("/reset", s.handleReset)
	v1.POST("/step", s.handleStep)
	v1.GET("/state", s.handleState)
	v1.GET("/validators", s.handleValidators)
}

func (s *Server) handleReset(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	seed := s.cfg.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	s.mu.Lock()
	obs, info := s.sim.Reset(seed)
	s.episodeID = uuid.NewString()
	resp := resetResponse{EpisodeID: s.episodeID, Observation: obs, Info: info}
	s.mu.Unlock()

	s.logger.Info().Str("episode_id", resp.EpisodeID).Int64("seed", seed).Msg("episode reset")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Alpha == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alpha is required"})
		return
	}
	alpha := *req.Alpha
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha < s.cfg.AlphaMin || alpha > s.cfg.AlphaMax {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("alpha %v outside [%v, %v]", alpha, s.cfg.AlphaMin, s.cfg.AlphaMax),
		})
		return
	}

	s.mu.Lock()
	res, err := s.sim.Step(alpha)
	episodeID := s.episodeID
	s.mu.Unlock()

	if errors.Is(err, simulation.ErrTerminated) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "episode_id": episodeID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metrics.RecordRound(res.Info.Alpha, res.Feedback, res.Observation.HonestProportion, res.Info.Flips)
	if res.Terminal {
		metrics.RecordTermination(string(res.Info.Termination))
	}
	s.logger.Debug().
		Str("episode_id", episodeID).
		Int("round", res.Info.Round).
		Float64("alpha", res.Info.Alpha).
		Float64("honest_proportion", res.Observation.HonestProportion).
		Float64("feedback", res.Feedback).
		Bool("terminated", res.Terminal).
		Msg("round")
	c.JSON(http.StatusOK, stepResponse{EpisodeID: episodeID, StepResult: res})
}

func (s *Server) handleState(c *gin.Context) {
	s.mu.Lock()
	resp := stateResponse{
		EpisodeID:            s.episodeID,
		Seed:                 s.sim.Seed(),
		Rebalancer:           s.sim.RebalancerName(),
		Observation:          s.sim.Observation(),
		Info:                 s.sim.Info(),
		Terminated:           s.sim.Terminal(),
		LastHonestProportion: s.sim.LastHonestProportion(),
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidators(c *gin.Context) {
	s.mu.Lock()
	records := s.sim.Validators()
	episodeID := s.episodeID
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"episode_id": episodeID,
		"validators": records,
	})
}
