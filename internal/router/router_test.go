package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradewire/dexstream/pkg/model"
)

type fakeBooks struct {
	snaps map[string]model.BookSnapshot
}

func (f *fakeBooks) BookSnapshot(symbol string, limit int) (model.BookSnapshot, bool) {
	snap, ok := f.snaps[symbol]
	if !ok {
		return model.BookSnapshot{}, false
	}
	if len(snap.Bids) > limit {
		snap.Bids = snap.Bids[:limit]
	}
	if len(snap.Asks) > limit {
		snap.Asks = snap.Asks[:limit]
	}
	return snap, true
}

type fakeDepth struct {
	current  model.Depth
	interval model.Depth
}

func (f *fakeDepth) CurrentDepth(ctx context.Context, poolID, chainID int64) model.Depth {
	return f.current
}

func (f *fakeDepth) DepthAtInterval(ctx context.Context, poolID, chainID, intervalMs int64) model.Depth {
	return f.interval
}

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	BindRouter(BindRouterOpts{
		ServerRouter: mux,
		Books: &fakeBooks{snaps: map[string]model.BookSnapshot{
			"ETHUSDC": {
				LastUpdateID: 42,
				Bids:         []model.PriceLevel{{"100", "8"}, {"99", "1"}, {"98", "1"}},
				Asks:         []model.PriceLevel{{"101", "3"}},
			},
		}},
		Depth: &fakeDepth{
			current:  model.Depth{Bids: []model.PriceLevel{{"100", "8"}}, Timestamp: 1000},
			interval: model.Depth{Bids: []model.PriceLevel{{"95", "2"}}, Timestamp: 500},
		},
	})
	return mux
}

func TestDepthEndpoint(t *testing.T) {
	mux := newTestMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v3/depth?symbol=ETHUSDC", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var snap model.BookSnapshot
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(42), snap.LastUpdateID)
	assert.Len(t, snap.Bids, 3)
}

func TestDepthEndpointHonorsLimit(t *testing.T) {
	mux := newTestMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v3/depth?symbol=ETHUSDC&limit=2", nil))

	var snap model.BookSnapshot
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Bids, 2)
}

func TestDepthEndpointUnknownSymbol(t *testing.T) {
	mux := newTestMux()

	for _, target := range []string{"/api/v3/depth?symbol=NOPE", "/api/v3/depth"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, -1121, body.Code)
		assert.Equal(t, "Invalid symbol.", body.Msg)
	}
}

func TestPoolDepthEndpoints(t *testing.T) {
	mux := newTestMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/depth?pool=1&chain=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var d model.Depth
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, int64(1000), d.Timestamp)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/depth/interval?pool=1&chain=1&intervalMs=60000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, int64(500), d.Timestamp)
}

func TestPoolDepthRejectsBadParams(t *testing.T) {
	mux := newTestMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/depth?pool=abc&chain=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/depth/interval?pool=1&chain=1&intervalMs=-5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
