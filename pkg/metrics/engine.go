package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine counts order, wallet and group-order outcomes. A nil *Engine is a
// valid no-op so services and tests can skip wiring it.
type Engine struct {
	wallet       *prometheus.CounterVec
	orders       *prometheus.CounterVec
	stockRejects prometheus.Counter
	groupRetries *prometheus.CounterVec
}

// NewEngine registers the engine metrics on the provided registerer.
func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		return nil
	}
	wallet := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_operations_total",
		Help: "Wallet and escrow operations by outcome.",
	}, []string{"op", "outcome"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_total",
		Help: "Order lifecycle transitions.",
	}, []string{"event"})
	stockRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_stock_rejections_total",
		Help: "Order placements refused for insufficient stock.",
	})
	groupRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "group_order_write_retries_total",
		Help: "Optimistic group order writes that hit a version conflict.",
	}, []string{"op"})
	reg.MustRegister(wallet, orders, stockRejects, groupRetries)
	return &Engine{
		wallet:       wallet,
		orders:       orders,
		stockRejects: stockRejects,
		groupRetries: groupRetries,
	}
}

// WalletOp records one wallet operation. err decides the outcome label.
func (e *Engine) WalletOp(op string, err error) {
	if e == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.wallet.WithLabelValues(normalizeLabel(op), outcome).Inc()
}

func (e *Engine) OrderEvent(event string) {
	if e == nil {
		return
	}
	e.orders.WithLabelValues(normalizeLabel(event)).Inc()
}

func (e *Engine) StockRejected() {
	if e == nil {
		return
	}
	e.stockRejects.Inc()
}

func (e *Engine) GroupOrderRetry(op string) {
	if e == nil {
		return
	}
	e.groupRetries.WithLabelValues(normalizeLabel(op)).Inc()
}
