// Package rpcwork exposes the node's current block template and seal
// submission over JSON-RPC, for external mining processes that hash
// against this node but live outside its process (a separate binary
// driving RandomX on dedicated hardware, or a worker behind a cluster
// coordinator). Two methods are served: work_getCompute hands back the
// key hash, pre-hash and difficulty a worker needs to start hashing, and
// work_submitSeal accepts a nonce and signature for the template it was
// handed.
package rpcwork

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/consensus"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
)

// ErrNoMetadata is returned when a request arrives before the node has a
// block template to hand out.
var ErrNoMetadata = errors.New("rpcwork: no metadata set yet")

// MetadataSource is the subset of *mining.Worker (or a cluster coordinator)
// rpcwork needs to read the live block template.
type MetadataSource interface {
	Metadata() (*mining.Metadata, bool)
}

// Submitter is the seal hand-off rpcwork needs to pass on a completed seal;
// it has the same method set as mining.Submitter.
type Submitter interface {
	SubmitSeal(preHash primitives.H256, sealBytes []byte) error
}

// Config configures a Server.
type Config struct {
	Addr string
	// RateLimit bounds requests per second per remote address; zero disables
	// limiting.
	RateLimit rate.Limit
	RateBurst int
	// JWTSecret, when non-empty, requires every request to carry a bearer
	// token signed with this secret (HS256). Empty disables auth, which is
	// the expected configuration for a worker bound to localhost only.
	JWTSecret string
	Logger    *slog.Logger
}

// DefaultConfig returns a config with a permissive rate limit and no auth,
// suitable for a worker endpoint bound to loopback.
func DefaultConfig() Config {
	return Config{
		Addr:      "127.0.0.1:9934",
		RateLimit: 50,
		RateBurst: 100,
		Logger:    slog.Default(),
	}
}

// Server serves work_getCompute/work_submitSeal over HTTP JSON-RPC.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	backend keyhash.Backend
	source  MetadataSource
	submit  Submitter
	period  uint64
	offset  uint64

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex

	httpServer *http.Server
}

// NewServer builds a Server. backend resolves key hashes from the metadata's
// best-head ancestry, the same way a local mining thread does.
func NewServer(cfg Config, backend keyhash.Backend, source MetadataSource, submit Submitter) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "rpcwork"),
		backend:  backend,
		source:   source,
		submit:   submit,
		period:   primitives.Period,
		offset:   primitives.Offset,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start begins serving on cfg.Addr in the background. It returns once the
// listener is accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("rpcwork: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rateLimited(s.authenticated(s.handleRPC)))

	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("rpcwork server stopped", "error", err)
		}
	}()
	s.logger.Info("rpcwork listening", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// request/response mirror the teacher's JSON-RPC envelope, server side.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func internalError(err error) *rpcError {
	return &rpcError{Code: -32603, Message: err.Error()}
}

var errMethodNotFound = &rpcError{Code: -32601, Message: "method not found"}
var errInvalidParams = &rpcError{Code: -32602, Message: "invalid params"}

// Compute is the wire form of work_getCompute's result: the key hash,
// pre-hash and difficulty a worker needs to begin hashing. The two hashes
// are hex-encoded; the difficulty is a decimal string.
type Compute struct {
	KeyHash    string `json:"key_hash"`
	PreHash    string `json:"pre_hash"`
	Difficulty string `json:"difficulty"`
}

// Seal is the wire form of work_submitSeal's parameter: the nonce a worker
// found and, for algorithm V2, the signature binding it to an author.
// Signature is omitted (empty string) for algorithm V1 templates.
type Seal struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, &rpcError{Code: -32700, Message: "parse error"})
		return
	}

	var result interface{}
	var rpcErr *rpcError

	switch req.Method {
	case "work_getCompute":
		result, rpcErr = s.getCompute(r.Context())
	case "work_submitSeal":
		result, rpcErr = s.submitSeal(r.Context(), req.Params)
	default:
		rpcErr = errMethodNotFound
	}

	if rpcErr != nil {
		writeError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) getCompute(ctx context.Context) (*Compute, *rpcError) {
	meta, ok := s.source.Metadata()
	if !ok {
		return nil, internalError(ErrNoMetadata)
	}

	parent, err := s.backend.HeaderByHash(meta.BestHash)
	if err != nil {
		return nil, internalError(fmt.Errorf("rpcwork: fetching best header: %w", err))
	}
	keyHash, err := keyhash.Resolve(s.backend, parent, s.period, s.offset)
	if err != nil {
		return nil, internalError(fmt.Errorf("rpcwork: resolving key hash: %w", err))
	}

	return &Compute{
		KeyHash:    keyHash.String(),
		PreHash:    meta.PreHash.String(),
		Difficulty: meta.Difficulty.String(),
	}, nil
}

func (s *Server) submitSeal(ctx context.Context, params json.RawMessage) (bool, *rpcError) {
	var seal Seal
	if err := json.Unmarshal(params, &seal); err != nil {
		return false, errInvalidParams
	}

	meta, ok := s.source.Metadata()
	if !ok {
		return false, internalError(ErrNoMetadata)
	}

	nonce, err := decodeH256(seal.Nonce)
	if err != nil {
		return false, errInvalidParams
	}

	var sealBytes []byte
	switch meta.Version {
	case consensus.VersionV1:
		sealBytes = compute.EncodeSealV1(compute.SealV1{Difficulty: meta.Difficulty, Nonce: nonce})
	case consensus.VersionV2:
		sig, err := hex.DecodeString(strings.TrimPrefix(seal.Signature, "0x"))
		if err != nil {
			return false, errInvalidParams
		}
		sealBytes = compute.EncodeSealV2(compute.SealV2{Difficulty: meta.Difficulty, Nonce: nonce, Signature: sig})
	default:
		return false, internalError(fmt.Errorf("rpcwork: unknown algorithm version %d", meta.Version))
	}

	if err := s.submit.SubmitSeal(meta.PreHash, sealBytes); err != nil {
		return false, internalError(fmt.Errorf("rpcwork: submitting seal: %w", err))
	}
	return true, nil
}

func decodeH256(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("rpcwork: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	writeJSON(w, response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	writeJSON(w, response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// rateLimited enforces cfg.RateLimit/RateBurst per remote address, evicting
// nothing: rpcwork expects a small, relatively stable set of worker
// addresses, not an internet-facing pool of unbounded clients.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.RateLimit <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiterFor(host).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *Server) limiterFor(host string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
		s.limiters[host] = l
	}
	return l
}

// authenticated requires a valid HS256 bearer token when cfg.JWTSecret is
// set; it is a no-op otherwise.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.JWTSecret == "" {
		return next
	}
	secret := []byte(s.cfg.JWTSecret)
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		if tokenStr == authz {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("rpcwork: unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
