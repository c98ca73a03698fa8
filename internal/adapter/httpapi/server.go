// Package httpapi serves the TradeFlow REST and WebSocket API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/tradeflow-backend/internal/logging"
	"github.com/simaogato/tradeflow-backend/internal/usecase/account"
	"github.com/simaogato/tradeflow-backend/internal/usecase/market"
	"github.com/simaogato/tradeflow-backend/internal/usecase/portfolio"
	"github.com/simaogato/tradeflow-backend/internal/usecase/quotestream"
	"github.com/simaogato/tradeflow-backend/internal/usecase/trading"
)

const requestTimeout = 30 * time.Second

// TokenVerifier resolves a bearer token to the user it was issued for
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Dependencies are the services behind the HTTP API
type Dependencies struct {
	Accounts  *account.AccountService
	Trading   *trading.TradingService
	Portfolio *portfolio.PortfolioService
	Market    *market.MarketService
	Quotes    *quotestream.Broadcaster
	Tokens    TokenVerifier
	Logger    *zap.Logger
}

type Server struct {
	Router *chi.Mux

	accounts  *account.AccountService
	trading   *trading.TradingService
	portfolio *portfolio.PortfolioService
	market    *market.MarketService
	quotes    *quotestream.Broadcaster
	tokens    TokenVerifier
	logger    *zap.Logger

	pingInterval time.Duration
}

func NewServer(deps Dependencies) *Server {
	server := &Server{
		Router:       chi.NewRouter(),
		accounts:     deps.Accounts,
		trading:      deps.Trading,
		portfolio:    deps.Portfolio,
		market:       deps.Market,
		quotes:       deps.Quotes,
		tokens:       deps.Tokens,
		logger:       logging.OrNop(deps.Logger),
		pingInterval: 30 * time.Second,
	}
	server.InitRoutes()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(s.requestLogger)
	s.Router.Use(s.recoverer)

	s.Router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", s.Welcome)
		r.Get("/health", s.Healthcheck)
		r.Get("/price/{symbol}", s.GetPrice)

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", s.RegisterUser)
			r.Post("/login", s.LoginUser)
		})

		r.Route("/trades", func(r chi.Router) {
			r.Get("/portfolio/historical-analysis/{symbol}", s.HistoricalAnalysis)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Post("/buy", s.Buy)
				r.Post("/sell", s.Sell)
				r.Get("/portfolio", s.GetPortfolio)
				r.Get("/trade-history", s.GetTradeHistory)
				r.Get("/portfolio/value", s.GetPortfolioValue)
				r.Get("/portfolio/profit-loss", s.GetProfitLoss)
				r.Get("/portfolio/diversity", s.GetDiversity)
			})
		})
	})

	s.Router.Get("/ws/price-updates/{symbol}", s.PriceUpdates)
}

func NewHTTPServer(addr string, server *Server) *http.Server {
	httpServer := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		Handler:           server,
	}
	return httpServer
}
