// Package metrics provides Prometheus instrumentation for the fund engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/fixedpoint"
	"github.com/offchain/fund-engine/internal/model"
)

var (
	// OperationsTotal counts fund operations by kind and result ("ok" or an error class).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_operations_total",
		Help: "Total fund operations by kind and result",
	}, []string{"kind", "result"})

	// SettledOrders counts orders converted by batch settlement.
	SettledOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_settled_orders_total",
		Help: "Orders settled by batch processing",
	}, []string{"side"})

	// SkippedOrders counts batch entries that were no-ops.
	SkippedOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_skipped_orders_total",
		Help: "Batch entries with nothing pending",
	}, []string{"side"})

	// BatchLatency tracks batch settlement duration.
	BatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fund_batch_latency_seconds",
		Help:    "Batch settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// Epoch is the current settlement epoch.
	Epoch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_epoch",
		Help: "Current settlement epoch",
	})

	// Price is the current price per share in whole asset units.
	Price = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_price",
		Help: "Current price per share",
	})

	// TotalShares is the outstanding share supply in whole shares.
	TotalShares = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_total_shares",
		Help: "Outstanding shares",
	})

	// NAV is the net asset value in whole asset units.
	NAV = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_nav",
		Help: "Net asset value",
	})

	// FundCash is the asset balance held by the fund account in whole units.
	FundCash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_cash",
		Help: "Underlying asset held by the fund account",
	})

	// CashCustodyOut is 1 while cash is with the off-platform custodian.
	CashCustodyOut = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_cash_custody_out",
		Help: "1 when the asset pool is with the custodian",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fund_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fund_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveState publishes the fund gauges. Gauges are float64 by nature;
// the conversion happens here and nowhere near settlement math.
func ObserveState(s model.FundState, assetDecimals int32) {
	Epoch.Set(float64(s.Epoch))
	Price.Set(whole(s.CurrentPrice, fixedpoint.PriceDecimals))
	TotalShares.Set(whole(s.TotalShares, fixedpoint.ShareDecimals))
	NAV.Set(whole(s.NAV, fixedpoint.NAVDecimals))
	FundCash.Set(whole(s.FundCash, assetDecimals))
	if s.CashCustodyOut {
		CashCustodyOut.Set(1)
	} else {
		CashCustodyOut.Set(0)
	}
}

func whole(units decimal.Decimal, decimals int32) float64 {
	f, _ := units.Shift(-decimals).Float64()
	return f
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
