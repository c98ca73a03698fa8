package grpc

// Request and response messages for TradeFlowService.
// Decimals travel as strings and timestamps as RFC 3339 strings.

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type RegisterResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type SubmitTradeRequest struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
	Side     string `json:"side"`
}

type SubmitTradeResponse struct {
	OrderID           string `json:"order_id"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	Quantity          string `json:"quantity"`
	Price             string `json:"price"`
	ResultingQuantity string `json:"resulting_quantity"`
	ExecutedAt        string `json:"executed_at"`
}

type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
}

type GetHoldingsRequest struct{}

type GetHoldingsResponse struct {
	Holdings []Holding `json:"holdings"`
}

type Trade struct {
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Quantity   string `json:"quantity"`
	Price      string `json:"price"`
	ExecutedAt string `json:"executed_at"`
}

type GetTradeHistoryRequest struct{}

type GetTradeHistoryResponse struct {
	Trades []Trade `json:"trades"`
}

type Position struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Value    string `json:"value"`
}

type GetPortfolioValueRequest struct{}

type GetPortfolioValueResponse struct {
	TotalValue string     `json:"total_value"`
	Positions  []Position `json:"positions"`
}

type GetProfitLossRequest struct{}

type GetProfitLossResponse struct {
	ProfitLoss map[string]string `json:"profit_loss"`
}

type GetDiversityRequest struct{}

type GetDiversityResponse struct {
	Diversity map[string]string `json:"diversity"`
}

type GetPriceRequest struct {
	Symbol string `json:"symbol"`
}

type GetPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type Bar struct {
	Time   string `json:"time"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume int64  `json:"volume"`
}

type GetHistoricalAnalysisRequest struct {
	Symbol string `json:"symbol"`
	Days   int32  `json:"days"`
}

type GetHistoricalAnalysisResponse struct {
	Symbol        string   `json:"symbol"`
	Bars          []Bar    `json:"bars"`
	MovingAverage []string `json:"moving_average"`
}
