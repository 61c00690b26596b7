package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/auth"
	"github.com/alemoreirac/maria-aux-back/internal/gateway"
	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/metrics"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

type AIRouter interface {
	RouteAI(ctx context.Context, req gateway.Request, userID string) (gateway.Response, error)
}

type Accounts interface {
	Balance(ctx context.Context, userID string) int64
	Add(ctx context.Context, userID string, amount int64) (int64, error)
}

type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]history.Entry, error)
}

// Store is the relational surface behind the catalogue, favourites and
// reports routes. *storage.Store satisfies it.
type Store interface {
	ListTemplates(ctx context.Context) ([]prompts.Template, error)
	GetTemplate(ctx context.Context, id int64) (prompts.Template, error)
	CreatePrompt(ctx context.Context, t prompts.Template) (int64, error)
	UpdatePrompt(ctx context.Context, t prompts.Template) error
	DeletePrompt(ctx context.Context, id int64) error
	GetParameter(ctx context.Context, id int64) (prompts.Parameter, error)
	AddParameter(ctx context.Context, p prompts.Parameter) (int64, error)
	UpdateParameter(ctx context.Context, p prompts.Parameter) (int64, error)
	DeleteParameter(ctx context.Context, id int64) (int64, error)

	AddFavourite(ctx context.Context, userID string, promptID int64) (string, error)
	RemoveFavourite(ctx context.Context, userID string, promptID int64) error
	ListFavourites(ctx context.Context, userID string) ([]storage.Favourite, error)

	CreateReport(ctx context.Context, r storage.Report) (storage.Report, error)
	ListReports(ctx context.Context, userID string) ([]storage.Report, error)
}

// TemplateReader serves single-template reads, usually the prompt cache.
type TemplateReader interface {
	GetTemplate(ctx context.Context, id int64) (prompts.Template, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, promptID int64)
}

type Limiter interface {
	Allow(ctx context.Context, userID string, now time.Time) (bool, int64, time.Time, error)
}

type Config struct {
	Router   AIRouter
	Accounts Accounts
	History  History
	Store    Store
	Verifier *auth.Verifier

	// Optional collaborators. Templates falls back to Store.
	Templates TemplateReader
	Cache     Invalidator
	Limiter   Limiter
	Ping      func(ctx context.Context) error

	CORSOrigins  []string
	HealthPath   string
	MetricsPath  string
	MaxBodyBytes int64
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type Server struct {
	router    AIRouter
	accounts  Accounts
	history   History
	store     Store
	templates TemplateReader
	cache     Invalidator
	limiter   Limiter
	ping      func(ctx context.Context) error
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	engine    *gin.Engine
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		router:    cfg.Router,
		accounts:  cfg.Accounts,
		history:   cfg.History,
		store:     cfg.Store,
		templates: cfg.Templates,
		cache:     cfg.Cache,
		limiter:   cfg.Limiter,
		ping:      cfg.Ping,
		log:       cfg.Logger.With().Str("component", "http").Logger(),
		metrics:   m,
		now:       time.Now,
	}
	if s.templates == nil && cfg.Store != nil {
		s.templates = cfg.Store
	}
	s.engine = s.routes(cfg)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(s.log))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	e.Use(cors.New(corsConfig))

	e.GET(cfg.HealthPath, s.health)
	e.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	api := e.Group("/api")
	api.Use(limitBody(cfg.MaxBodyBytes), authenticate(cfg.Verifier))

	api.POST("/process", s.process)
	api.GET("/menu", s.menu)
	api.GET("/prompts/:id", s.getPrompt)
	api.GET("/prompts/:id/parameters", s.listPromptParameters)
	api.GET("/users/dashboard", s.dashboard)
	api.GET("/favourites", s.listFavourites)
	api.POST("/favourites", s.addFavourite)
	api.DELETE("/favourites/:prompt_id", s.removeFavourite)
	api.GET("/reports", s.listReports)
	api.POST("/reports", s.createReport)

	admin := api.Group("")
	admin.Use(requireAdmin())
	admin.POST("/prompts", s.createPrompt)
	admin.PUT("/prompts/:id", s.updatePrompt)
	admin.DELETE("/prompts/:id", s.deletePrompt)
	admin.POST("/prompts/:id/parameters", s.addParameter)
	admin.GET("/parameters/:id", s.getParameter)
	admin.PUT("/parameters/:id", s.updateParameter)
	admin.DELETE("/parameters/:id", s.deleteParameter)
	admin.POST("/admin/credits", s.grantCredits)

	return e
}

func (s *Server) health(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			c.String(http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
