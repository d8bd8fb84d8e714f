package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxIterations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imba_engine_iterations_total",
			Help: "Trading loop iterations completed",
		},
	)

	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imba_signals_total",
			Help: "Signals handled, split by outcome",
		},
		[]string{"outcome"}, // executed|skipped|rejected|error
	)

	mtxSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imba_skips_total",
			Help: "Skipped signals split by reason",
		},
		[]string{"reason"}, // cooldown|duplicate|sized_zero|trading_hours|halted
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imba_orders_total",
			Help: "Entry orders placed",
		},
		[]string{"symbol", "side"},
	)

	mtxHalts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imba_emergency_halts_total",
			Help: "Emergency halts triggered",
		},
	)

	mtxBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imba_account_balance_usd",
			Help: "Last observed available balance",
		},
	)

	mtxDailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imba_daily_realized_pnl_usd",
			Help: "Realized PnL accumulated since the last UTC reset",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxIterations, mtxSignals, mtxSkips)
	prometheus.MustRegister(mtxOrders, mtxHalts)
	prometheus.MustRegister(mtxBalance, mtxDailyPnL)
}
