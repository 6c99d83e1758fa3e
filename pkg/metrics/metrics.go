package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PurchasesConfirmed counts purchase confirmations that mutated the ledger
var PurchasesConfirmed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tokenledger_purchases_confirmed_total",
		Help: "Total number of token purchases confirmed",
	},
)

// TradesExecuted counts market maker trades by side (buy/sell)
var TradesExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenledger_trades_executed_total",
		Help: "Total number of market maker trades executed",
	},
	[]string{"side"},
)

// TradeLatency records latency distribution for market maker trades
var TradeLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "tokenledger_trade_latency_seconds",
		Help:    "Latency in seconds to settle a market maker trade",
		Buckets: prometheus.DefBuckets,
	},
)

// Unstakes counts unstake operations by mode (regular/early)
var Unstakes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenledger_unstakes_total",
		Help: "Total number of unstake operations",
	},
	[]string{"mode"},
)

// Market state gauges
var (
	LivePrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenledger_live_price",
			Help: "Last recorded token price in settlement currency",
		},
	)

	SoldSupply = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenledger_sold_supply",
			Help: "Cumulative tokens issued",
		},
	)

	RecorderFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenledger_marketdata_record_failures_total",
			Help: "Tick or candle writes that failed after retries",
		},
	)
)

// Deposit watcher metrics
var (
	Deposits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_deposits_total",
			Help: "Deposits observed by the watcher, by resulting status",
		},
		[]string{"network", "asset", "status"},
	)

	WatcherCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokenledger_watcher_cycle_seconds",
			Help:    "Duration of one deposit watcher poll cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	WatcherErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_watcher_errors_total",
			Help: "Errors skipped by the deposit watcher",
		},
		[]string{"stage"},
	)
)

// OutboxPublished counts outbox events delivered, by topic and result
var OutboxPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenledger_outbox_published_total",
		Help: "Outbox events delivered",
	},
	[]string{"topic", "result"},
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenledger_http_request_duration_seconds",
			Help:    "Histogram of response latency (seconds) for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenledger_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenledger_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(PurchasesConfirmed, TradesExecuted, TradeLatency, Unstakes)
	prometheus.MustRegister(LivePrice, SoldSupply, RecorderFailures)
	prometheus.MustRegister(Deposits, WatcherCycleDuration, WatcherErrors)
	prometheus.MustRegister(OutboxPublished)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}
