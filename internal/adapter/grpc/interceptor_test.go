package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// staticVerifier accepts exactly one token
type staticVerifier struct {
	token  string
	userID uuid.UUID
}

func (v staticVerifier) Verify(token string) (uuid.UUID, error) {
	if token != v.token {
		return uuid.Nil, errors.New("bad token")
	}
	return v.userID, nil
}

func TestAuthInterceptor(t *testing.T) {
	validToken := "test-token-123"
	userID := uuid.New()
	interceptor := AuthInterceptor(staticVerifier{token: validToken, userID: userID})

	tests := []struct {
		name           string
		ctx            context.Context
		method         string
		handlerCalled  bool
		expectUserID   bool
		expectedCode   codes.Code
		expectedErrMsg string
	}{
		{
			name: "Valid Bearer Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "Bearer "+validToken),
			),
			method:        MethodGetHoldings,
			handlerCalled: true,
			expectUserID:  true,
			expectedCode:  codes.OK,
		},
		{
			name: "Valid Raw Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", validToken),
			),
			method:        MethodSubmitTrade,
			handlerCalled: true,
			expectUserID:  true,
			expectedCode:  codes.OK,
		},
		{
			name: "Invalid Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "Bearer wrong-token"),
			),
			method:         MethodSubmitTrade,
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "invalid token",
		},
		{
			name:           "Missing Token",
			ctx:            context.Background(),
			method:         MethodGetHoldings,
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing metadata",
		},
		{
			name: "Missing Authorization Header",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("other-header", "value"),
			),
			method:         MethodGetHoldings,
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing authorization header",
		},
		{
			name:          "Login Is Public",
			ctx:           context.Background(),
			method:        MethodLogin,
			handlerCalled: true,
			expectedCode:  codes.OK,
		},
		{
			name:          "Register Is Public",
			ctx:           context.Background(),
			method:        MethodRegister,
			handlerCalled: true,
			expectedCode:  codes.OK,
		},
		{
			name:          "Health Is Public",
			ctx:           context.Background(),
			method:        "/grpc.health.v1.Health/Check",
			handlerCalled: true,
			expectedCode:  codes.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			var gotUserID uuid.UUID
			var hasUserID bool
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				handlerCalled = true
				gotUserID, hasUserID = UserIDFromContext(ctx)
				return "success", nil
			}

			info := &grpc.UnaryServerInfo{
				FullMethod: tt.method,
			}

			resp, err := interceptor(tt.ctx, "test-request", info, handler)

			assert.Equal(t, tt.handlerCalled, handlerCalled, "handler called status mismatch")

			if tt.expectedCode == codes.OK {
				assert.NoError(t, err)
				assert.Equal(t, "success", resp)
				assert.Equal(t, tt.expectUserID, hasUserID)
				if tt.expectUserID {
					assert.Equal(t, userID, gotUserID)
				}
			} else {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok, "error should be a gRPC status")
				assert.Equal(t, tt.expectedCode, st.Code())
				assert.Contains(t, st.Message(), tt.expectedErrMsg)
			}
		})
	}
}

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	interceptor := LoggingInterceptor(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: MethodGetPrice}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.DataLoss, "boom")
	})
	assert.Error(t, err)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
		assert.Equal(t, "DataLoss", entries[0].ContextMap()["code"])
		assert.Equal(t, MethodGetPrice, entries[0].ContextMap()["method"])
	}
}
