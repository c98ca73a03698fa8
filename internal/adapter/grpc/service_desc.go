package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "tradeflow.v1.TradeFlowService"

// Full method names, as seen by interceptors
const (
	MethodRegister              = "/" + ServiceName + "/Register"
	MethodLogin                 = "/" + ServiceName + "/Login"
	MethodSubmitTrade           = "/" + ServiceName + "/SubmitTrade"
	MethodGetHoldings           = "/" + ServiceName + "/GetHoldings"
	MethodGetTradeHistory       = "/" + ServiceName + "/GetTradeHistory"
	MethodGetPortfolioValue     = "/" + ServiceName + "/GetPortfolioValue"
	MethodGetProfitLoss         = "/" + ServiceName + "/GetProfitLoss"
	MethodGetDiversity          = "/" + ServiceName + "/GetDiversity"
	MethodGetPrice              = "/" + ServiceName + "/GetPrice"
	MethodGetHistoricalAnalysis = "/" + ServiceName + "/GetHistoricalAnalysis"
)

// TradeFlowServiceServer is the server API for TradeFlowService
type TradeFlowServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	SubmitTrade(context.Context, *SubmitTradeRequest) (*SubmitTradeResponse, error)
	GetHoldings(context.Context, *GetHoldingsRequest) (*GetHoldingsResponse, error)
	GetTradeHistory(context.Context, *GetTradeHistoryRequest) (*GetTradeHistoryResponse, error)
	GetPortfolioValue(context.Context, *GetPortfolioValueRequest) (*GetPortfolioValueResponse, error)
	GetProfitLoss(context.Context, *GetProfitLossRequest) (*GetProfitLossResponse, error)
	GetDiversity(context.Context, *GetDiversityRequest) (*GetDiversityResponse, error)
	GetPrice(context.Context, *GetPriceRequest) (*GetPriceResponse, error)
	GetHistoricalAnalysis(context.Context, *GetHistoricalAnalysisRequest) (*GetHistoricalAnalysisResponse, error)
}

// RegisterTradeFlowServiceServer registers srv on s
func RegisterTradeFlowServiceServer(s grpc.ServiceRegistrar, srv TradeFlowServiceServer) {
	s.RegisterService(&TradeFlowServiceDesc, srv)
}

// TradeFlowServiceDesc describes TradeFlowService for grpc.Server
var TradeFlowServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TradeFlowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, TradeFlowServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, TradeFlowServiceServer.Login)},
		{MethodName: "SubmitTrade", Handler: unaryHandler(MethodSubmitTrade, TradeFlowServiceServer.SubmitTrade)},
		{MethodName: "GetHoldings", Handler: unaryHandler(MethodGetHoldings, TradeFlowServiceServer.GetHoldings)},
		{MethodName: "GetTradeHistory", Handler: unaryHandler(MethodGetTradeHistory, TradeFlowServiceServer.GetTradeHistory)},
		{MethodName: "GetPortfolioValue", Handler: unaryHandler(MethodGetPortfolioValue, TradeFlowServiceServer.GetPortfolioValue)},
		{MethodName: "GetProfitLoss", Handler: unaryHandler(MethodGetProfitLoss, TradeFlowServiceServer.GetProfitLoss)},
		{MethodName: "GetDiversity", Handler: unaryHandler(MethodGetDiversity, TradeFlowServiceServer.GetDiversity)},
		{MethodName: "GetPrice", Handler: unaryHandler(MethodGetPrice, TradeFlowServiceServer.GetPrice)},
		{MethodName: "GetHistoricalAnalysis", Handler: unaryHandler(MethodGetHistoricalAnalysis, TradeFlowServiceServer.GetHistoricalAnalysis)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradeflow/v1/tradeflow.proto",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(TradeFlowServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradeFlowServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradeFlowServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls TradeFlowService over a connection using the JSON codec
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new TradeFlowService client
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *Client) SubmitTrade(ctx context.Context, in *SubmitTradeRequest, opts ...grpc.CallOption) (*SubmitTradeResponse, error) {
	return invoke[SubmitTradeResponse](ctx, c.cc, MethodSubmitTrade, in, opts)
}

func (c *Client) GetHoldings(ctx context.Context, in *GetHoldingsRequest, opts ...grpc.CallOption) (*GetHoldingsResponse, error) {
	return invoke[GetHoldingsResponse](ctx, c.cc, MethodGetHoldings, in, opts)
}

func (c *Client) GetTradeHistory(ctx context.Context, in *GetTradeHistoryRequest, opts ...grpc.CallOption) (*GetTradeHistoryResponse, error) {
	return invoke[GetTradeHistoryResponse](ctx, c.cc, MethodGetTradeHistory, in, opts)
}

func (c *Client) GetPortfolioValue(ctx context.Context, in *GetPortfolioValueRequest, opts ...grpc.CallOption) (*GetPortfolioValueResponse, error) {
	return invoke[GetPortfolioValueResponse](ctx, c.cc, MethodGetPortfolioValue, in, opts)
}

func (c *Client) GetProfitLoss(ctx context.Context, in *GetProfitLossRequest, opts ...grpc.CallOption) (*GetProfitLossResponse, error) {
	return invoke[GetProfitLossResponse](ctx, c.cc, MethodGetProfitLoss, in, opts)
}

func (c *Client) GetDiversity(ctx context.Context, in *GetDiversityRequest, opts ...grpc.CallOption) (*GetDiversityResponse, error) {
	return invoke[GetDiversityResponse](ctx, c.cc, MethodGetDiversity, in, opts)
}

func (c *Client) GetPrice(ctx context.Context, in *GetPriceRequest, opts ...grpc.CallOption) (*GetPriceResponse, error) {
	return invoke[GetPriceResponse](ctx, c.cc, MethodGetPrice, in, opts)
}

func (c *Client) GetHistoricalAnalysis(ctx context.Context, in *GetHistoricalAnalysisRequest, opts ...grpc.CallOption) (*GetHistoricalAnalysisResponse, error) {
	return invoke[GetHistoricalAnalysisResponse](ctx, c.cc, MethodGetHistoricalAnalysis, in, opts)
}
