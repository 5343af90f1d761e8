// Package server exposes the brief pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ramin-sadeghi/briefer/config"
	"github.com/ramin-sadeghi/briefer/internal/engine"
	"github.com/ramin-sadeghi/briefer/internal/llm"
	"github.com/ramin-sadeghi/briefer/internal/store"
	"github.com/ramin-sadeghi/briefer/internal/telemetry"
	"github.com/ramin-sadeghi/briefer/tools/web_fetch"
	"github.com/ramin-sadeghi/briefer/tools/web_search"
)

// BuildEngine wires the engine's dependency graph from configuration. The
// returned context store must be closed by the caller when done.
func BuildEngine(ctx context.Context, cfg *config.Config, tele *telemetry.Telemetry) (*engine.Engine, store.ContextStore, error) {
	storeLogger := log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	cs, err := store.New(ctx, cfg.Storage, storeLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("context store: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		cs.Close()
		return nil, nil, fmt.Errorf("llm provider: %w", err)
	}

	searcher, err := newSearcher(cfg.Search)
	if err != nil {
		cs.Close()
		return nil, nil, fmt.Errorf("web search: %w", err)
	}

	var fetcher web_fetch.Fetcher
	if cfg.Engine.FetchPageContent {
		fetcher = web_fetch.NewReadabilityFetcher(cfg.Search.Timeout)
	}

	engineLogger := log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	eng := engine.New(cfg, engineLogger, provider, searcher, fetcher, cs, tele)
	return eng, cs, nil
}

// Run wires the full dependency graph and serves until the listener fails.
func Run(cfg *config.Config, addr string) error {
	ctx := context.Background()

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	eng, cs, err := BuildEngine(ctx, cfg, tele)
	if err != nil {
		return err
	}
	defer cs.Close()

	e := newEcho(tele)
	bh := &BriefsHandler{Runner: eng, Logger: log.New(log.Writer(), "[BRIEFS] ", log.LstdFlags)}
	bh.Register(e.Group("/api"))

	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":10020"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the echo instance with the shared middleware stack and the
// operational endpoints. Kept separate so handler tests can use it directly.
func newEcho(tele *telemetry.Telemetry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if tele != nil {
		e.GET("/metrics", echo.WrapHandler(tele.Handler()))
	}
	return e
}

func newSearcher(cfg config.SearchConfig) (web_search.WebSearcher, error) {
	switch cfg.Provider {
	case "tavily":
		return web_search.NewWebSearcher(web_search.TavilyProvider, cfg.TavilyAPIKey)
	case "brave":
		return web_search.NewWebSearcher(web_search.BraveProvider, cfg.BraveAPIKey)
	case "serper":
		return web_search.NewWebSearcher(web_search.SerperProvider, cfg.SerperAPIKey)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
