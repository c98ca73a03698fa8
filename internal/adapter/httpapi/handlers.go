package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/usecase/account"
	"github.com/simaogato/tradeflow-backend/internal/usecase/trading"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

type TradeResponse struct {
	Message           string          `json:"message"`
	OrderID           string          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	Side              domain.Side     `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	ResultingQuantity decimal.Decimal `json:"resulting_quantity"`
	ExecutedAt        time.Time       `json:"executed_at"`
}

type HoldingItem struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

type TradeItem struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      domain.Side     `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

type PositionItem struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

func (s *Server) Welcome(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, map[string]string{"message": "Welcome to the Trading Platform"}, http.StatusOK)
}

func (s *Server) Healthcheck(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.HandleErrors(w, r, domain.InvalidRequestf("malformed body: %v", err))
		return
	}

	user, err := s.accounts.Register(r.Context(), account.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	s.respond(w, r, map[string]string{
		"message": "User registered successfully!",
		"user_id": user.ID.String(),
	}, http.StatusCreated)
}

func (s *Server) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.HandleErrors(w, r, domain.InvalidRequestf("malformed body: %v", err))
		return
	}

	token, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	s.respond(w, r, TokenResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
	}, http.StatusOK)
}

func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	s.submitTrade(w, r, domain.SideBuy)
}

func (s *Server) Sell(w http.ResponseWriter, r *http.Request) {
	s.submitTrade(w, r, domain.SideSell)
}

func (s *Server) submitTrade(w http.ResponseWriter, r *http.Request, side domain.Side) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.HandleErrors(w, r, domain.InvalidRequestf("malformed body: %v", err))
		return
	}

	confirmation, err := s.trading.SubmitTrade(r.Context(), trading.SubmitTradeInput{
		UserID:   userIDFrom(r.Context()),
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Side:     side,
	})
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	verb := "Bought"
	if side == domain.SideSell {
		verb = "Sold"
	}

	s.respond(w, r, TradeResponse{
		Message:           fmt.Sprintf("%s %s shares of %s", verb, confirmation.Quantity, confirmation.Symbol),
		OrderID:           confirmation.OrderID.String(),
		Symbol:            confirmation.Symbol,
		Side:              confirmation.Side,
		Quantity:          confirmation.Quantity,
		Price:             confirmation.Price,
		ResultingQuantity: confirmation.ResultingQuantity,
		ExecutedAt:        confirmation.ExecutedAt,
	}, http.StatusOK)
}

func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.trading.GetHoldings(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	items := make([]HoldingItem, 0, len(holdings))
	for _, h := range holdings {
		items = append(items, HoldingItem{Symbol: h.Symbol, Quantity: h.Quantity})
	}
	s.respond(w, r, map[string]interface{}{"portfolio": items}, http.StatusOK)
}

func (s *Server) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trading.GetTradeHistory(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	items := make([]TradeItem, 0, len(trades))
	for _, t := range trades {
		items = append(items, TradeItem{
			OrderID:   t.OrderID.String(),
			Symbol:    t.Symbol,
			Side:      t.Side,
			Quantity:  t.Quantity,
			Price:     t.Price,
			Timestamp: t.ExecutedAt,
		})
	}
	s.respond(w, r, map[string]interface{}{"trade_history": items}, http.StatusOK)
}

func (s *Server) GetPortfolioValue(w http.ResponseWriter, r *http.Request) {
	result, err := s.portfolio.TotalValue(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	positions := make([]PositionItem, 0, len(result.Positions))
	for _, p := range result.Positions {
		positions = append(positions, PositionItem(p))
	}
	s.respond(w, r, map[string]interface{}{
		"total_portfolio_value": result.Total,
		"positions":             positions,
	}, http.StatusOK)
}

func (s *Server) GetProfitLoss(w http.ResponseWriter, r *http.Request) {
	result, err := s.portfolio.ProfitLoss(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}
	s.respond(w, r, map[string]interface{}{"profit_loss": result}, http.StatusOK)
}

func (s *Server) GetDiversity(w http.ResponseWriter, r *http.Request) {
	result, err := s.portfolio.Diversity(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}
	s.respond(w, r, map[string]interface{}{"portfolio_diversity": result}, http.StatusOK)
}

func (s *Server) HistoricalAnalysis(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.HandleErrors(w, r, domain.InvalidRequestf("days must be an integer, got %q", raw))
			return
		}
		days = parsed
		if days == 0 {
			s.HandleErrors(w, r, domain.InvalidRequestf("days must be positive"))
			return
		}
	}

	result, err := s.market.HistoricalAnalysis(r.Context(), chi.URLParam(r, "symbol"), days)
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}

	s.respond(w, r, map[string]interface{}{
		"symbol":            result.Symbol,
		"historical_prices": result.Bars,
		"moving_average":    result.MovingAverage,
	}, http.StatusOK)
}

func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol, price, err := s.market.GetPrice(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.HandleErrors(w, r, err)
		return
	}
	s.respond(w, r, domain.Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()}, http.StatusOK)
}
