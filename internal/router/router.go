package router

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/tradewire/dexstream/pkg/model"
)

const defaultDepthLimit = 100

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Printf("%s %s %d %dB %s", r.Method, r.URL.Path, sw.status, sw.n, time.Since(start))
	})
}

// wrap your mux with Cors(mux) when starting the server
func Cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			reqHdrs := r.Header.Get("Access-Control-Request-Headers")
			if reqHdrs == "" {
				reqHdrs = "Content-Type, Authorization"
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHdrs)

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if reqMethod == "" {
				reqMethod = "GET, OPTIONS"
			}
			w.Header().Set("Access-Control-Allow-Methods", reqMethod)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BookSource is the gateway-side depth cache the REST endpoint reads from.
type BookSource interface {
	BookSnapshot(symbol string, limit int) (model.BookSnapshot, bool)
}

// DepthSource serves storage-backed depth queries (live and point-in-time).
type DepthSource interface {
	CurrentDepth(ctx context.Context, poolID, chainID int64) model.Depth
	DepthAtInterval(ctx context.Context, poolID, chainID, intervalMs int64) model.Depth
}

type depthRouter struct {
	books BookSource
	depth DepthSource
}

// GET /api/v3/depth?symbol=ETHUSDC&limit=100
func (dr *depthRouter) Depth(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	limit := defaultDepthLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	snap, ok := dr.books.BookSnapshot(symbol, limit)
	if symbol == "" || !ok {
		writeAPIError(w, http.StatusBadRequest, codeInvalidSymbol, "Invalid symbol.")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/depth?pool=1&chain=1 → live depth from the depth store
func (dr *depthRouter) PoolDepth(w http.ResponseWriter, r *http.Request) {
	poolID, chainID, ok := poolParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dr.depth.CurrentDepth(r.Context(), poolID, chainID))
}

// GET /api/v1/depth/interval?pool=1&chain=1&intervalMs=60000 → depth as of
// intervalMs ago, from the newest old-enough snapshot
func (dr *depthRouter) PoolDepthAtInterval(w http.ResponseWriter, r *http.Request) {
	poolID, chainID, ok := poolParams(w, r)
	if !ok {
		return
	}
	intervalMs, err := strconv.ParseInt(r.URL.Query().Get("intervalMs"), 10, 64)
	if err != nil || intervalMs < 0 {
		writeAPIError(w, http.StatusBadRequest, codeIllegalParam, "Illegal characters found in a parameter.")
		return
	}
	writeJSON(w, http.StatusOK, dr.depth.DepthAtInterval(r.Context(), poolID, chainID, intervalMs))
}

func poolParams(w http.ResponseWriter, r *http.Request) (poolID, chainID int64, ok bool) {
	poolID, errPool := strconv.ParseInt(r.URL.Query().Get("pool"), 10, 64)
	chainID, errChain := strconv.ParseInt(r.URL.Query().Get("chain"), 10, 64)
	if errPool != nil || errChain != nil {
		writeAPIError(w, http.StatusBadRequest, codeIllegalParam, "Illegal characters found in a parameter.")
		return 0, 0, false
	}
	return poolID, chainID, true
}

type BindRouterOpts struct {
	ServerRouter *http.ServeMux
	Books        BookSource
	Depth        DepthSource
}

func BindRouter(opts BindRouterOpts) {
	dr := &depthRouter{books: opts.Books, depth: opts.Depth}
	opts.ServerRouter.Handle("GET /api/v3/depth", logging(http.HandlerFunc(dr.Depth)))
	opts.ServerRouter.Handle("GET /api/v1/depth", logging(http.HandlerFunc(dr.PoolDepth)))
	opts.ServerRouter.Handle("GET /api/v1/depth/interval", logging(http.HandlerFunc(dr.PoolDepthAtInterval)))

	//healthcheck
	opts.ServerRouter.Handle("GET /healthz", logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": 200,
			"health": "healthy",
		})
	})))
}
