package aria2

import (
	"bytes"
	"context"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/magnetdl/magnetdl/internal/request"
	"github.com/valyala/fastjson"
	"io"
	"net/http"
	"strings"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError is an error object returned by the daemon.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("aria2 %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// call invokes method with the secret token prepended to params and returns the "result" member.
func (a *Aria2) call(ctx context.Context, method string, params ...any) (*fastjson.Value, error) {
	if a.secret != "" {
		params = append([]any{"token:" + a.secret}, params...)
	}
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &request.NetworkError{Op: "reading rpc response", Err: err}
	}

	v, err := fastjson.ParseBytes(body)
	if err != nil {
		if resp.StatusCode >= 300 {
			return nil, &request.HTTPError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			}
		}
		return nil, fmt.Errorf("aria2 %s: malformed response: %w", method, err)
	}
	if e := v.Get("error"); e != nil && e.Type() == fastjson.TypeObject {
		return nil, &RPCError{
			Method:  method,
			Code:    e.GetInt("code"),
			Message: string(e.GetStringBytes("message")),
		}
	}
	result := v.Get("result")
	if result == nil {
		return nil, fmt.Errorf("aria2 %s: response has no result", method)
	}
	return result, nil
}
