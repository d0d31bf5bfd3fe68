package metrics

import (
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicetime_active_sessions",
			Help: "Number of users currently tracked in the voice channel",
		},
	)

	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetime_sessions_started_total",
			Help: "Total sessions started",
		},
	)

	SessionsEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetime_sessions_ended_total",
			Help: "Total sessions ended and handed to the aggregator",
		},
	)

	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voicetime_session_duration_seconds",
			Help:    "Duration of ended sessions in seconds",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		},
	)

	DayRollovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetime_day_rollovers_total",
			Help: "Midnight rollovers performed in the reference timezone",
		},
	)

	CacheResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicetime_total_time_cache_resets_total",
			Help: "Times the per-user total-time cache was cleared",
		},
	)

	// Status toggle metrics
	ToggleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetime_toggle_events_total",
			Help: "Total status toggle events logged",
		},
		[]string{"event"},
	)

	// Failure metrics
	Failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetime_failures_total",
			Help: "Swallowed failures by kind",
		},
		[]string{"kind", "op"},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetime_notifications_total",
			Help: "Notifications by category and result",
		},
		[]string{"category", "result"},
	)

	// Gateway metrics
	GatewayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicetime_gateway_events_total",
			Help: "Voice state events received from the gateway",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ActiveSessions,
		SessionsStarted,
		SessionsEnded,
		SessionDuration,
		DayRollovers,
		CacheResets,
		ToggleEvents,
		Failures,
		NotificationsSent,
		GatewayEvents,
	)
}

// Server is the metrics HTTP server. It also hosts any routes registered
// through Router, such as the read-only stats API.
type Server struct {
	server   *http.Server
	router   *mux.Router
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		router: router,
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Router exposes the underlying router so other packages can mount routes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Serve blocks serving HTTP until the server is stopped.
func (s *Server) Serve() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")

	var err error
	if s.listener != nil {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
		err = s.server.Serve(s.listener)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("Metrics server error")
		return err
	}
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
