package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"orderly/internal/fanout"
	"orderly/internal/metrics"
	"orderly/internal/orchestrator"
	"orderly/logger"
	"orderly/models"
)

const (
	defaultHTTPPort  = "8080"
	wsWriteTimeout   = 5 * time.Second
	historyLimit     = 200
	runtimeInterval  = 5 * time.Second
)

// HealthSource reports connector status for /healthz.
type HealthSource interface {
	Status() map[models.Exchange]orchestrator.ConnectorStatus
}

// HTTPServer hosts the Gin routes next to the gRPC stream: the latest book,
// connector health, a WebSocket book stream, Prometheus metrics, per venue
// log history and a process runtime history.
type HTTPServer struct {
	address             string
	dist                *fanout.Distributor
	health              HealthSource
	maxUpdatesPerSecond float64
	log                 *logger.Log
	venueLog            *venueLog
	runtimeSampler      *runtimeSampler
	upgrader            websocket.Upgrader
	httpServer          *http.Server
}

func NewHTTPServer(address string, dist *fanout.Distributor, health HealthSource, maxUpdatesPerSecond float64, log *logger.Log) *HTTPServer {
	venues := newVenueLog(historyLimit)
	log.AddHook(venues)

	return &HTTPServer{
		address:             normalizeAddress(address),
		dist:                dist,
		health:              health,
		maxUpdatesPerSecond: maxUpdatesPerSecond,
		log:                 log,
		venueLog:            venues,
		runtimeSampler:      newRuntimeSampler(dist, historyLimit, runtimeInterval, log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (s *HTTPServer) Run(ctx context.Context) error {
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.runtimeSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:    s.address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("http").WithField("address", s.address).Info("HTTP server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *HTTPServer) cleanup() {
	s.venueLog.close()
	s.runtimeSampler.stop()
}

// Address reports the address the server listens on.
func (s *HTTPServer) Address() string {
	return s.address
}

func (s *HTTPServer) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/book", s.getBook)
	router.GET("/healthz", s.getHealth)
	router.GET("/ws", s.streamBooks)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/api/logs", s.getLogs)
	router.GET("/api/venues", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"venues": s.venueLog.summaries()})
	})
	router.GET("/api/runtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"samples": s.runtimeSampler.snapshot()})
	})

	return router, nil
}

func (s *HTTPServer) getBook(c *gin.Context) {
	book, ok := s.dist.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no merged book yet"})
		return
	}
	c.JSON(http.StatusOK, NewSummary(book))
}

// getLogs serves recent log lines, optionally narrowed with the exchange,
// level and limit query parameters.
func (s *HTTPServer) getLogs(c *gin.Context) {
	var exchange *models.Exchange
	if name := c.Query("exchange"); name != "" {
		ex, err := models.ParseExchange(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		exchange = &ex
	}

	level, err := logrus.ParseLevel(c.DefaultQuery("level", "info"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := historyLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, gin.H{"logs": s.venueLog.recent(exchange, level, limit)})
}

// getHealth answers 200 while at least one connector is streaming.
func (s *HTTPServer) getHealth(c *gin.Context) {
	statuses := s.health.Status()
	connectors := make([]orchestrator.ConnectorStatus, 0, len(statuses))
	streaming := 0
	for _, st := range statuses {
		connectors = append(connectors, st)
		if st.State == orchestrator.Streaming {
			streaming++
		}
	}
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].Exchange < connectors[j].Exchange })

	code, state := http.StatusOK, "ok"
	switch {
	case streaming == 0:
		code, state = http.StatusServiceUnavailable, "down"
	case streaming < len(connectors):
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status":      state,
		"subscribers": s.dist.Len(),
		"connectors":  connectors,
	})
}

func (s *HTTPServer) streamBooks(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithComponent("http").WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.dist.Subscribe("ws-" + uuid.NewString())
	log := s.log.WithComponent("http").WithFields(logger.Fields{
		"subscriber": sub.Name(),
		"remote":     c.Request.RemoteAddr,
	})
	log.Info("websocket client connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Client frames are ignored; the read only detects a closed peer.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = fanout.Forward(ctx, sub, newLimiter(s.maxUpdatesPerSecond), func(book models.MergedBook) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(NewSummary(book))
	})
	if errors.Is(err, fanout.ErrClosed) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
	}
	log.WithField("reason", errString(err)).Info("websocket client disconnected")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:" + defaultHTTPPort
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = defaultHTTPPort
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") || net.ParseIP(addr) != nil {
		return net.JoinHostPort(addr, defaultHTTPPort)
	}
	return addr
}
