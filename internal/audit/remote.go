package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface check.
var _ Oracle = (*RemoteOracle)(nil)

// A2A JSON-RPC wire format, limited to what message/send needs.
const (
	jsonRPCVersion    = "2.0"
	methodSendMessage = "message/send"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type part struct {
	Text      string          `json:"text,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	MediaType string          `json:"mediaType,omitempty"`
}

type message struct {
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []part `json:"parts"`
}

type sendMessageParams struct {
	Message       message `json:"message"`
	Configuration struct {
		AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
		Blocking            bool     `json:"blocking"`
	} `json:"configuration"`
}

type artifact struct {
	Name  string `json:"name"`
	Parts []part `json:"parts"`
}

type task struct {
	ID     string `json:"id"`
	Status struct {
		State   string   `json:"state"`
		Message *message `json:"message,omitempty"`
	} `json:"status"`
	Artifacts []artifact `json:"artifacts,omitempty"`
}

// RPCError is a JSON-RPC error returned by the oracle agent.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("oracle: rpc error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("oracle: rpc error %d: %s", e.Code, e.Message)
}

// ErrNoArtifact is returned when a completed task carries no usable artifact.
var ErrNoArtifact = errors.New("oracle: task returned no artifact")

// RemoteOracle asks an A2A agent to audit each route. The request travels as
// a JSON data part of a blocking message/send call; the answer is read from
// the first artifact of the returned task.
type RemoteOracle struct {
	endpoint  string
	http      *http.Client
	requestID atomic.Int64
}

// RemoteOption configures a RemoteOracle.
type RemoteOption func(*RemoteOracle)

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(o *RemoteOracle) {
		o.http = hc
	}
}

// NewRemoteOracle creates an oracle that calls the agent at endpoint.
// Per-call deadlines come from the context; the client has no timeout of
// its own.
func NewRemoteOracle(endpoint string, opts ...RemoteOption) *RemoteOracle {
	o := &RemoteOracle{endpoint: endpoint, http: &http.Client{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Audit implements Oracle.
func (o *RemoteOracle) Audit(ctx context.Context, req AuditRequest) (*AuditResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal request: %w", err)
	}
	var params sendMessageParams
	params.Message = message{
		MessageID: uuid.NewString(),
		Role:      "user",
		Parts:     []part{{Data: data, MediaType: "application/json"}},
	}
	params.Configuration.Blocking = true
	params.Configuration.AcceptedOutputModes = []string{"application/json", "text/plain"}

	var t task
	if err := o.call(ctx, methodSendMessage, params, &t); err != nil {
		return nil, err
	}
	switch t.Status.State {
	case "completed":
	case "":
		return nil, fmt.Errorf("oracle: task %s has no state", t.ID)
	default:
		return nil, fmt.Errorf("oracle: task %s ended in state %q", t.ID, t.Status.State)
	}

	raw, err := firstArtifact(t)
	if err != nil {
		return nil, err
	}
	var res AuditResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return &res, nil
}

// firstArtifact returns the JSON payload of the first artifact part, from a
// data part or a text part holding JSON.
func firstArtifact(t task) ([]byte, error) {
	if len(t.Artifacts) == 0 {
		return nil, ErrNoArtifact
	}
	for _, p := range t.Artifacts[0].Parts {
		if len(p.Data) > 0 {
			return p.Data, nil
		}
		if strings.TrimSpace(p.Text) != "" {
			return []byte(stripFence(p.Text)), nil
		}
	}
	return nil, ErrNoArtifact
}

// stripFence removes a surrounding ``` or ```json markdown fence.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return strings.Trim(s, "`")
	}
	s = s[nl+1:]
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// call performs a JSON-RPC 2.0 call over HTTP POST.
func (o *RemoteOracle) call(ctx context.Context, method string, params, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("oracle: marshal params: %w", err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      o.requestID.Add(1),
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("oracle: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oracle: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := o.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("oracle: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: %s: HTTP %d after %s: %s", method, resp.StatusCode, time.Since(start).Round(time.Millisecond), string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("oracle: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message, Data: rpcResp.Error.Data}
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("oracle: decode result: %w", err)
		}
	}
	return nil
}
