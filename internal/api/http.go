package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowflowstack/snowflow-ranker/internal/config"
	rankerv1 "github.com/snowflowstack/snowflow-ranker/internal/grpc/rankerv1"
)

// maxBodyBytes bounds prediction request bodies.
const maxBodyBytes = 1 << 20

// Gateway exposes the Ranker service as JSON over HTTP.
type Gateway struct {
	logger   *slog.Logger
	ranker   rankerv1.RankerServer
	server   *http.Server
	listener net.Listener
}

// NewGateway binds the HTTP listener and builds the router.
func NewGateway(logger *slog.Logger, cfg config.ServerConfig, ranker rankerv1.RankerServer) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}
	g := &Gateway{logger: logger, ranker: ranker, listener: lis}
	g.server = &http.Server{
		Handler:           Router(logger, ranker, cfg.RateLimit),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return g, nil
}

// Router builds the gateway routes. rateLimit is requests per minute per client
// IP on the API routes; zero disables limiting.
func Router(logger *slog.Logger, ranker rankerv1.RankerServer, rateLimit int) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &gatewayHandler{logger: logger, ranker: ranker}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		if rateLimit > 0 {
			r.Use(httprate.LimitByIP(rateLimit, time.Minute))
		}
		r.Post("/predict", h.predict)
		r.Get("/model", h.model)
		r.Get("/products/{id}/importance", h.importance)
	})
	return r
}

// Start serves until Shutdown is invoked.
func (g *Gateway) Start() error {
	err := g.server.Serve(g.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// Address exposes the bound listener address.
func (g *Gateway) Address() string {
	return g.listener.Addr().String()
}

type gatewayHandler struct {
	logger *slog.Logger
	ranker rankerv1.RankerServer
}

func (h *gatewayHandler) predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "read body"))
		return
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(body, req); err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "body must be a JSON object"))
		return
	}
	// A bare object of conditions is accepted as shorthand.
	if _, ok := req.Fields["conditions"]; !ok {
		req = &structpb.Struct{Fields: map[string]*structpb.Value{"conditions": structpb.NewStructValue(req)}}
	}
	h.respond(w, r)(h.ranker.Predict(r.Context(), req))
}

func (h *gatewayHandler) model(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.ranker.ModelInfo(r.Context(), &emptypb.Empty{}))
}

func (h *gatewayHandler) importance(w http.ResponseWriter, r *http.Request) {
	fields := map[string]*structpb.Value{
		"product_id": structpb.NewStringValue(chi.URLParam(r, "id")),
	}
	q := r.URL.Query()
	if v := q.Get("baseline"); v != "" {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeError(w, r, status.Error(codes.InvalidArgument, "baseline must be a number"))
			return
		}
		fields["baseline"] = structpb.NewNumberValue(x)
	}
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, status.Error(codes.InvalidArgument, "top_k must be an integer"))
			return
		}
		fields["top_k"] = structpb.NewNumberValue(float64(n))
	}
	h.respond(w, r)(h.ranker.Explain(r.Context(), &structpb.Struct{Fields: fields}))
}

func (h *gatewayHandler) health(w http.ResponseWriter, r *http.Request) {
	info, err := h.ranker.ModelInfo(r.Context(), &emptypb.Empty{})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  info.GetFields()["fingerprint"].GetStringValue(),
	})
}

func (h *gatewayHandler) respond(w http.ResponseWriter, r *http.Request) func(proto.Message, error) {
	return func(msg proto.Message, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		data, err := protojson.Marshal(msg)
		if err != nil {
			h.writeError(w, r, status.Error(codes.Internal, "encode response"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (h *gatewayHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status.Convert(err)
	code := HTTPStatusFromCode(st.Code())
	if code >= http.StatusInternalServerError {
		h.logger.Error("gateway request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, code, map[string]string{"error": st.Message(), "code": st.Code().String()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HTTPStatusFromCode maps gRPC status codes onto HTTP statuses.
func HTTPStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
