package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/metrics"
	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

type fakeSource struct {
	state     router.State
	decisions map[string]*router.RoutingDecision
	routeErr  error
	routed    *router.Order
}

func (f *fakeSource) RouteOrder(_ context.Context, order *router.Order) (*router.RoutingDecision, error) {
	f.routed = order
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	return &router.RoutingDecision{ID: "dec-new", OrderID: order.ID, Strategy: "single-venue"}, nil
}

func (f *fakeSource) UpdateMarketCondition(condition market.Condition) error {
	if !condition.Valid() {
		return &router.ValidationError{Field: "condition", Reason: "unknown value"}
	}
	f.state.MarketCondition = condition
	return nil
}

func (f *fakeSource) GetState() router.State { return f.state }

func (f *fakeSource) RecentDecision(id string) (*router.RoutingDecision, bool) {
	d, ok := f.decisions[id]
	return d, ok
}

func newTestServer() (*Server, *fakeSource) {
	source := &fakeSource{
		state: router.State{
			VenueMetrics:    map[string]venue.Metrics{"alpha": {VenueID: "alpha", FillRate: 0.97}},
			MarketCondition: market.ConditionNormal,
		},
		decisions: map[string]*router.RoutingDecision{
			"abc": {ID: "abc", OrderID: "ord-1", Strategy: "single-venue"},
		},
	}
	return New(":0", source, metrics.New().Registry()), source
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestState(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, "/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var state router.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, market.ConditionNormal, state.MarketCondition)
	assert.Equal(t, 0.97, state.VenueMetrics["alpha"].FillRate)
}

func TestDecisionLookup(t *testing.T) {
	s, _ := newTestServer()

	rec := get(t, s, "/decisions/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	var decision router.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "ord-1", decision.OrderID)

	rec = get(t, s, "/decisions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postRoute(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/route", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRouteOrder(t *testing.T) {
	s, source := newTestServer()

	rec := postRoute(t, s, `{"id":"ord-9","symbol":"BTC-USD","side":"buy","quantity":5,"type":"market"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var decision router.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "ord-9", decision.OrderID)
	require.NotNil(t, source.routed)
	assert.Equal(t, 5.0, source.routed.Quantity)
}

func TestRouteOrderErrorMapping(t *testing.T) {
	s, source := newTestServer()

	rec := postRoute(t, s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	source.routeErr = &router.ValidationError{Field: "quantity", Reason: "must be positive"}
	rec = postRoute(t, s, `{"symbol":"BTC-USD"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	source.routeErr = &router.InsufficientLiquidityError{Symbol: "BTC-USD", Requested: 100, Available: 10}
	rec = postRoute(t, s, `{"symbol":"BTC-USD"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	source.routeErr = &router.ExchangeError{Venue: "alpha", Err: context.DeadlineExceeded}
	rec = postRoute(t, s, `{"symbol":"BTC-USD"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUpdateCondition(t *testing.T) {
	s, source := newTestServer()

	req := httptest.NewRequest(http.MethodPut, "/condition", strings.NewReader(`{"condition":"volatile"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, market.ConditionVolatile, source.state.MarketCondition)

	req = httptest.NewRequest(http.MethodPut, "/condition", strings.NewReader(`{"condition":"sideways"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
