package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "chat_messages_total", Help: "Chat lines received from Twitch"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Classified chat signals"},
		[]string{"direction"},
	)
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Price ticks committed"},
	)
	TickErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tick_errors_total", Help: "Ticks that failed to persist"},
	)
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broadcasts_total", Help: "Messages fanned out to subscribers"},
		[]string{"type"},
	)
	SubscribersDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "subscribers_dropped_total", Help: "Subscribers pruned after send failure"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "subscribers", Help: "Currently connected websocket subscribers"},
	)
	CurrentPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "current_price", Help: "Current stonk price"},
	)
)

func init() {
	prometheus.MustRegister(
		ChatMessagesTotal, SignalsTotal, TicksTotal, TickErrorsTotal,
		BroadcastsTotal, SubscribersDropped, Subscribers, CurrentPrice,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
