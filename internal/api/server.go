// Package api exposes the webhook and dashboard HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/el-gregus/skr-swap/internal/account"
	"github.com/el-gregus/skr-swap/internal/events"
	"github.com/el-gregus/skr-swap/internal/signal"
	"github.com/el-gregus/skr-swap/internal/store"
)

// SignalHandler accepts normalized signals; satisfied by *router.Router.
type SignalHandler interface {
	Handle(sig *signal.Signal)
}

// Store is the read side the dashboard needs.
type Store interface {
	ListSwaps(accountID, status string, limit int) ([]store.SwapRow, error)
	ListSignals(limit int) ([]store.SignalRow, error)
	WalletBalances(accountID string) (map[string]float64, error)
}

// Server wires HTTP endpoints around the signal router and the store.
type Server struct {
	Router    *gin.Engine
	signals   SignalHandler
	store     Store
	reg       *account.Registry
	bus       *events.Bus
	sourceTag string
	log       zerolog.Logger
}

func NewServer(signals SignalHandler, st Store, reg *account.Registry, bus *events.Bus, sourceTag string, log zerolog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		signals:   signals,
		store:     st,
		reg:       reg,
		bus:       bus,
		sourceTag: sourceTag,
		log:       log.With().Str("comp", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.POST("/webhook", s.webhook)
	s.Router.GET("/", s.dashboard)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/swaps", s.listSwaps)
		api.GET("/signals", s.listSignals)
		api.GET("/accounts", s.listAccounts)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "skr-swap"})
}

// webhook receives trading alerts. Accepted bodies:
//
//	JSON:      {"signal": "<raw alert>", "amount": 1.0, "note": "..."}
//	form-ish:  signal=<raw alert>&amount=1.0
//	raw:       the bare comma-delimited alert string
func (s *Server) webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	raw, amount, note, perr := parsePayload(body, c.ContentType())
	if perr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
		return
	}

	sig, err := signal.ParseAlert(raw, s.sourceTag)
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected webhook")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig.Amount = amount
	sig.Note = note

	s.log.Info().Str("action", string(sig.Action)).Str("symbol", sig.Symbol).Msg("webhook received")
	s.signals.Handle(sig)

	c.JSON(http.StatusOK, gin.H{
		"status": "received",
		"action": sig.Action,
		"symbol": sig.Symbol,
		"amount": sig.Amount,
	})
}

// parsePayload extracts the raw alert string plus optional amount/note from
// any of the supported body shapes.
func parsePayload(body []byte, contentType string) (raw string, amount float64, note string, err error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", 0, "", errors.New("empty body")
	}

	if strings.Contains(contentType, "application/json") || strings.HasPrefix(text, "{") {
		var payload map[string]any
		if jerr := json.Unmarshal(body, &payload); jerr != nil {
			return "", 0, "", errors.New("invalid JSON payload")
		}
		raw, _ = payload["signal"].(string)
		if raw == "" {
			return "", 0, "", errors.New("missing required field: signal")
		}
		note, _ = payload["note"].(string)
		amount = leniently(payload["amount"])
		return raw, amount, note, nil
	}

	if strings.HasPrefix(text, "signal=") {
		values, qerr := url.ParseQuery(text)
		if qerr != nil {
			return "", 0, "", errors.New("invalid form payload")
		}
		raw = values.Get("signal")
		if raw == "" {
			return "", 0, "", errors.New("missing required field: signal")
		}
		note = values.Get("note")
		if a := values.Get("amount"); a != "" {
			amount, _ = strconv.ParseFloat(a, 64)
		}
		return raw, amount, note, nil
	}

	// Bare alert string.
	return text, 0, "", nil
}

// leniently coerces an amount value; parse failures drop the field rather
// than failing the signal.
func leniently(v any) float64 {
	switch a := v.(type) {
	case float64:
		return a
	case string:
		f, _ := strconv.ParseFloat(a, 64)
		return f
	default:
		return 0
	}
}

func (s *Server) listSwaps(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	swaps, err := s.store.ListSwaps(c.Query("account"), c.Query("status"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swaps": swaps})
}

func (s *Server) listSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sigs, err := s.store.ListSignals(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs})
}

func (s *Server) listAccounts(c *gin.Context) {
	type accountView struct {
		ID       string             `json:"id"`
		Label    string             `json:"label"`
		Enabled  bool               `json:"enabled"`
		Address  string             `json:"address"`
		Pair     string             `json:"pair"`
		Balances map[string]float64 `json:"balances"`
	}
	var out []accountView
	for _, acct := range s.reg.All() {
		balances, err := s.store.WalletBalances(acct.ID)
		if err != nil {
			balances = nil
		}
		out = append(out, accountView{
			ID:       acct.ID,
			Label:    acct.Label,
			Enabled:  acct.Enabled,
			Address:  acct.PublicKey().String(),
			Pair:     acct.Strategy.TokenPair,
			Balances: balances,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}
