package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/simaogato/tradeflow-backend/internal/usecase/account"
	"github.com/simaogato/tradeflow-backend/internal/usecase/market"
	"github.com/simaogato/tradeflow-backend/internal/usecase/portfolio"
	"github.com/simaogato/tradeflow-backend/internal/usecase/trading"
)

// Server implements the TradeFlowService gRPC server
type Server struct {
	AccountService   *account.AccountService
	TradingService   *trading.TradingService
	PortfolioService *portfolio.PortfolioService
	MarketService    *market.MarketService
}

var _ TradeFlowServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	accountService *account.AccountService,
	tradingService *trading.TradingService,
	portfolioService *portfolio.PortfolioService,
	marketService *market.MarketService,
) *Server {
	return &Server{
		AccountService:   accountService,
		TradingService:   tradingService,
		PortfolioService: portfolioService,
		MarketService:    marketService,
	}
}

// Register handles the Register RPC
func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	user, err := s.AccountService.Register(ctx, account.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &RegisterResponse{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

// Login handles the Login RPC
func (s *Server) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	token, err := s.AccountService.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, mapError(err)
	}

	return &LoginResponse{
		AccessToken: token.Token,
		TokenType:   token.TokenType,
		ExpiresAt:   formatTime(token.ExpiresAt),
	}, nil
}

// SubmitTrade handles the SubmitTrade RPC
func (s *Server) SubmitTrade(ctx context.Context, req *SubmitTradeRequest) (*SubmitTradeResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	// Parse quantity from string to decimal
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid quantity format: %v", err)
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return nil, mapError(err)
	}

	confirmation, err := s.TradingService.SubmitTrade(ctx, trading.SubmitTradeInput{
		UserID:   userID,
		Symbol:   req.Symbol,
		Quantity: quantity,
		Side:     side,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &SubmitTradeResponse{
		OrderID:           confirmation.OrderID.String(),
		Symbol:            confirmation.Symbol,
		Side:              string(confirmation.Side),
		Quantity:          confirmation.Quantity.String(),
		Price:             confirmation.Price.String(),
		ResultingQuantity: confirmation.ResultingQuantity.String(),
		ExecutedAt:        formatTime(confirmation.ExecutedAt),
	}, nil
}

// GetHoldings handles the GetHoldings RPC
func (s *Server) GetHoldings(ctx context.Context, _ *GetHoldingsRequest) (*GetHoldingsResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	holdings, err := s.TradingService.GetHoldings(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &GetHoldingsResponse{Holdings: make([]Holding, 0, len(holdings))}
	for _, h := range holdings {
		resp.Holdings = append(resp.Holdings, Holding{Symbol: h.Symbol, Quantity: h.Quantity.String()})
	}
	return resp, nil
}

// GetTradeHistory handles the GetTradeHistory RPC
func (s *Server) GetTradeHistory(ctx context.Context, _ *GetTradeHistoryRequest) (*GetTradeHistoryResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	trades, err := s.TradingService.GetTradeHistory(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &GetTradeHistoryResponse{Trades: make([]Trade, 0, len(trades))}
	for _, tr := range trades {
		resp.Trades = append(resp.Trades, Trade{
			OrderID:    tr.OrderID.String(),
			Symbol:     tr.Symbol,
			Side:       string(tr.Side),
			Quantity:   tr.Quantity.String(),
			Price:      tr.Price.String(),
			ExecutedAt: formatTime(tr.ExecutedAt),
		})
	}
	return resp, nil
}

// GetPortfolioValue handles the GetPortfolioValue RPC
func (s *Server) GetPortfolioValue(ctx context.Context, _ *GetPortfolioValueRequest) (*GetPortfolioValueResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.PortfolioService.TotalValue(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &GetPortfolioValueResponse{
		TotalValue: result.Total.String(),
		Positions:  make([]Position, 0, len(result.Positions)),
	}
	for _, p := range result.Positions {
		resp.Positions = append(resp.Positions, Position{
			Symbol:   p.Symbol,
			Quantity: p.Quantity.String(),
			Price:    p.Price.String(),
			Value:    p.Value.String(),
		})
	}
	return resp, nil
}

// GetProfitLoss handles the GetProfitLoss RPC
func (s *Server) GetProfitLoss(ctx context.Context, _ *GetProfitLossRequest) (*GetProfitLossResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.PortfolioService.ProfitLoss(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &GetProfitLossResponse{ProfitLoss: decimalMap(result)}, nil
}

// GetDiversity handles the GetDiversity RPC
func (s *Server) GetDiversity(ctx context.Context, _ *GetDiversityRequest) (*GetDiversityResponse, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.PortfolioService.Diversity(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &GetDiversityResponse{Diversity: decimalMap(result)}, nil
}

// GetPrice handles the GetPrice RPC
func (s *Server) GetPrice(ctx context.Context, req *GetPriceRequest) (*GetPriceResponse, error) {
	symbol, price, err := s.MarketService.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, mapError(err)
	}
	return &GetPriceResponse{Symbol: symbol, Price: price.String()}, nil
}

// GetHistoricalAnalysis handles the GetHistoricalAnalysis RPC
func (s *Server) GetHistoricalAnalysis(ctx context.Context, req *GetHistoricalAnalysisRequest) (*GetHistoricalAnalysisResponse, error) {
	result, err := s.MarketService.HistoricalAnalysis(ctx, req.Symbol, int(req.Days))
	if err != nil {
		return nil, mapError(err)
	}

	resp := &GetHistoricalAnalysisResponse{
		Symbol:        result.Symbol,
		Bars:          make([]Bar, 0, len(result.Bars)),
		MovingAverage: make([]string, 0, len(result.MovingAverage)),
	}
	for _, b := range result.Bars {
		resp.Bars = append(resp.Bars, Bar{
			Time:   formatTime(b.Time),
			Open:   b.Open.String(),
			High:   b.High.String(),
			Low:    b.Low.String(),
			Close:  b.Close.String(),
			Volume: b.Volume,
		})
	}
	for _, v := range result.MovingAverage {
		resp.MovingAverage = append(resp.MovingAverage, v.String())
	}
	return resp, nil
}

func requireUser(ctx context.Context) (uuid.UUID, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "missing user")
	}
	return userID, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decimalMap(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v.String()
	}
	return out
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errorMsg := err.Error()

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, errorMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, errorMsg)
	case domain.IsReconciliationFailed(err), errors.Is(err, domain.ErrLedgerInvariantViolation):
		return status.Error(codes.DataLoss, errorMsg)
	case domain.IsExecutionFailed(err):
		return status.Error(codes.Unavailable, errorMsg)
	case errors.Is(err, domain.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, errorMsg)
	case errors.Is(err, domain.ErrInsufficientHoldings):
		return status.Error(codes.FailedPrecondition, errorMsg)
	case errors.Is(err, domain.ErrUserExists):
		return status.Error(codes.AlreadyExists, errorMsg)
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, errorMsg)
	case errors.Is(err, domain.ErrUnknownSymbol),
		errors.Is(err, domain.ErrNoHistoricalData),
		errors.Is(err, domain.ErrHoldingNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return status.Error(codes.NotFound, errorMsg)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return status.Error(codes.Unavailable, errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Error(codes.Internal, errorMsg)
}
