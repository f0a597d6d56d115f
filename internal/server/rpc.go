package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/services/iam"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

// maxRPCBodyBytes bounds the request envelope. Policy composites are the
// largest legitimate payload and stay far below this.
const maxRPCBodyBytes = 1 << 20

// rpcRequest is the JSON-RPC 2.0 request envelope. Batch envelopes are not
// supported: one request per POST.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope. Result is pre-marshaled
// so boolean false survives omitempty; exactly one of Result and Error is
// set.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcHandler executes one method. caller is the authenticated account id, or
// empty for anonymous requests.
type rpcHandler func(ctx context.Context, caller string, params json.RawMessage) (any, error)

// RPC dispatches JSON-RPC requests to the service. Methods are named
// "<entity>.<verb>"; the three edge entities share handler constructors
// parameterized by relation.
type RPC struct {
	svc     iam.Service
	logger  *log.Logger
	metrics *telemetry.Metrics
	methods map[string]rpcHandler
}

// edgeEntities maps RPC entity names onto the edge relations they operate on.
var edgeEntities = map[string]models.Relation{
	"abac_subject_attr": models.RelationSubject,
	"abac_object_attr":  models.RelationObject,
	"abac_action_attr":  models.RelationAction,
}

// NewRPC builds the dispatcher with every method registered. logger and
// metrics may be nil.
func NewRPC(svc iam.Service, logger *log.Logger, metrics *telemetry.Metrics) *RPC {
	if logger == nil {
		logger = log.Default()
	}
	s := &RPC{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
	}

	s.methods = map[string]rpcHandler{
		"ping":      s.handlePing,
		"authorize": s.handleAuthorize,

		"account.read":    s.handleAccountRead,
		"account.enable":  s.handleAccountEnable,
		"account.disable": s.handleAccountDisable,
		"account.delete":  s.handleAccountDelete,

		"identity.create": s.handleIdentityCreate,
		"identity.read":   s.handleIdentityRead,
		"identity.delete": s.handleIdentityDelete,
		"identity.list":   s.handleIdentityList,

		"namespace.create": s.handleNamespaceCreate,
		"namespace.read":   s.handleNamespaceRead,
		"namespace.update": s.handleNamespaceUpdate,
		"namespace.delete": s.handleNamespaceDelete,
		"namespace.list":   s.handleNamespaceList,

		"abac_policy.create": s.handlePolicyCreate,
		"abac_policy.read":   s.handlePolicyRead,
		"abac_policy.delete": s.handlePolicyDelete,
		"abac_policy.list":   s.handlePolicyList,
	}
	for entity, rel := range edgeEntities {
		s.methods[entity+".create"] = s.makeEdgeCreate(rel)
		s.methods[entity+".read"] = s.makeEdgeRead(rel)
		s.methods[entity+".delete"] = s.makeEdgeDelete(rel)
		s.methods[entity+".list"] = s.makeEdgeList(rel)
		s.methods[entity+".tree"] = s.makeEdgeTree(rel)
	}
	return s
}

// ServeHTTP handles one JSON-RPC request. Responses ride HTTP 200 regardless
// of outcome; transport-level authentication failures are rejected by the
// middleware before this point.
func (s *RPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req rpcRequest
	body := http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.reply(r.Context(), w, "", started, nil, nil, &rpcError{Code: codeParseError, Message: "Parse error"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.reply(r.Context(), w, req.Method, started, req.ID, nil, &rpcError{Code: codeInvalidRequest, Message: "Invalid request"})
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		s.reply(r.Context(), w, req.Method, started, req.ID, nil, &rpcError{Code: codeMethodNotFound, Message: "Method not found"})
		return
	}

	var caller string
	if subject, ok := auth.SubjectFromContext(r.Context()); ok {
		caller = subject.AccountID
	}

	result, err := handler(r.Context(), caller, req.Params)
	if err != nil {
		rerr := toRPCError(err)
		if rerr.Code == codeInternal {
			s.logger.Error("rpc method failed", "method", req.Method, "err", err)
		}
		s.reply(r.Context(), w, req.Method, started, req.ID, nil, rerr)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("rpc result marshal failed", "method", req.Method, "err", err)
		s.reply(r.Context(), w, req.Method, started, req.ID, nil, &rpcError{Code: codeInternal, Message: "Internal error"})
		return
	}
	s.reply(r.Context(), w, req.Method, started, req.ID, raw, nil)
}

func (s *RPC) reply(ctx context.Context, w http.ResponseWriter, method string, started time.Time, id, result json.RawMessage, rerr *rpcError) {
	code := http.StatusOK
	if rerr != nil {
		code = rerr.Code
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(ctx, method, code, time.Since(started))
	}
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
		Error:   rerr,
	})
}

// decodeParams unmarshals the params member into a typed struct. Pagination
// fields are uint16 there, so negative or oversized values fail here as
// invalid params rather than reaching the service.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, invalidParams("%s", err)
	}
	return p, nil
}
