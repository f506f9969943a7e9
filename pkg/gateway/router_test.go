package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_RegisterMethod(t *testing.T) {
	router := NewRPCRouter()

	t.Run("should register method successfully", func(t *testing.T) {
		handler := func(context.Context, map[string]interface{}) (interface{}, error) {
			return "result", nil
		}

		err := router.RegisterMethod("test.method", handler)
		assert.NoError(t, err)
		assert.True(t, router.HasMethod("test.method"))
	})

	t.Run("should reject nil handler", func(t *testing.T) {
		err := router.RegisterMethod("test.nil", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "handler cannot be nil")
	})

	t.Run("should unregister method", func(t *testing.T) {
		router.UnregisterMethod("test.method")
		assert.False(t, router.HasMethod("test.method"))
		router.UnregisterMethod("non.existent")
	})
}

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	t.Run("should parse valid request", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"startRecording","params":{"path":"/tmp/a.aac"}}`))
		require.NoError(t, err)
		assert.Equal(t, RequestID("1"), req.ID)
		assert.Equal(t, "startRecording", req.Method)
		assert.Equal(t, "/tmp/a.aac", req.Params["path"])
		assert.Equal(t, "2.0", req.JSONRPC)
	})

	cases := []struct {
		name string
		data string
		code int
		msg  string
	}{
		{"malformed JSON", `{invalid json}`, ParseError, "Parse error"},
		{"missing id", `{"method":"stopRecording"}`, InvalidRequest, "missing id"},
		{"missing method", `{"id":"1"}`, InvalidRequest, "missing method"},
	}

	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := router.ParseRequest([]byte(tc.data))
			require.Error(t, err)

			rpcErr, ok := err.(*RPCError)
			require.True(t, ok)
			assert.Equal(t, tc.code, rpcErr.Code)
			assert.Contains(t, rpcErr.Message, tc.msg)
		})
	}
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	router := NewRPCRouter()
	ctx := context.Background()

	require.NoError(t, router.RegisterMethod("test.echo", func(_ context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"echo": params["input"]}, nil
	}))
	require.NoError(t, router.RegisterMethod("test.error", func(context.Context, map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("NOT_RECORDING")
	}))
	require.NoError(t, router.RegisterMethod("test.rpcerror", func(context.Context, map[string]interface{}) (interface{}, error) {
		return nil, &RPCError{Code: InvalidParams, Message: "bad limit"}
	}))

	t.Run("should route to registered handler", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "1", Method: "test.echo", Params: map[string]interface{}{"input": "hello"}})
		assert.Equal(t, RequestID("1"), resp.ID)
		assert.Nil(t, resp.Error)
		assert.Equal(t, "hello", resp.Result.(map[string]interface{})["echo"])
	})

	t.Run("should return error for unknown method", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "2", Method: "unknown.method"})
		assert.Equal(t, RequestID("2"), resp.ID)
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})

	t.Run("should map plain errors to application errors", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "3", Method: "test.error"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, ApplicationError, resp.Error.Code)
		assert.Equal(t, "NOT_RECORDING", resp.Error.Message)
	})

	t.Run("should keep handler RPC errors", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "4", Method: "test.rpcerror"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})

	t.Run("should reject nil request", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
	})
}

func TestRPCRouter_GetMethods(t *testing.T) {
	router := NewRPCRouter()
	assert.Empty(t, router.GetMethods())

	handler := func(context.Context, map[string]interface{}) (interface{}, error) { return nil, nil }
	_ = router.RegisterMethod("stopRecording", handler)
	_ = router.RegisterMethod("pauseRecording", handler)

	assert.Equal(t, []string{"pauseRecording", "stopRecording"}, router.GetMethods())
}

func TestRequestID_Unmarshal(t *testing.T) {
	router := NewRPCRouter()

	req, err := router.ParseRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"recording.state"}`))
	require.NoError(t, err)
	assert.Equal(t, RequestID("7"), req.ID)

	data, err := json.Marshal(router.RouteRequest(context.Background(), req))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"7"`)

	_, err = router.ParseRequest([]byte(`{"id":{"a":1},"method":"recording.state"}`))
	require.Error(t, err)

	_, err = router.ParseRequest([]byte(`{"id":null,"method":"recording.state"}`))
	require.Error(t, err)
}
