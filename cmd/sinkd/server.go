package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/core"
	"github.com/lisuiheng/xiaozhi-sink/metrics"
	wsconn "github.com/lisuiheng/xiaozhi-sink/protocols/websocket"
	"github.com/lisuiheng/xiaozhi-sink/synth"
	"github.com/prometheus/client_golang/prometheus"
)

// Server 每个websocket连接创建一个输出设备, 用演示生产者驱动它
type Server struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg Config, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.metrics = metrics.New(cfg.Metrics.Namespace, s.registry)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry))
	}
	r.Get("/v1/stream", s.handleStream)
	return r
}

// Shutdown 终止所有设备并等待连接处理结束
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// 非浏览器客户端通常不带Origin
		return true
	}
	if slices.Contains(s.cfg.Server.AllowedOrigins, "*") || slices.Contains(s.cfg.Server.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Server.AccessToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.Server.AccessToken
}

// deviceConfig 允许客户端用 encoding / sample_rate 查询参数覆盖设备配置
func (s *Server) deviceConfig(query url.Values) (core.Config, error) {
	cfg := s.cfg.Device
	if v := query.Get("encoding"); v != "" {
		enc, err := audio.ParseEncoding(v)
		if err != nil {
			return cfg, err
		}
		cfg.Encoding = enc
	}
	if v := query.Get("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.New("sample_rate must be an integer")
		}
		cfg.SampleRate = rate
	}
	return cfg, cfg.Validate()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	cfg, err := s.deviceConfig(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	conn := wsconn.Wrap(ws)
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()

	var opts []core.Option
	opts = append(opts, core.WithMetrics(s.metrics))
	if id := r.Header.Get("Device-Id"); id != "" {
		opts = append(opts, core.WithID(id))
	}
	device, err := core.NewOutputDevice(conn, cfg, s.logger, opts...)
	if err != nil {
		s.logger.Error("Failed to create output device", "error", err)
		_ = conn.CloseWithReason(websocket.CloseInternalServerErr, "device unavailable")
		return
	}
	defer device.Terminate()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// 对端断开时终止设备
	go func() {
		for range conn.Receive() {
		}
		cancel()
	}()

	log := s.logger.With("device_id", device.ID(), "remote", r.RemoteAddr)
	device.Start(ctx)

	producer, err := synth.NewProducer(s.cfg.Demo, cfg.SampleRate, log)
	if err != nil {
		log.Error("Failed to create producer", "error", err)
		_ = conn.CloseWithReason(websocket.CloseInternalServerErr, "producer unavailable")
		return
	}
	if err := producer.Run(ctx, device); err != nil {
		log.Warn("Producer stopped", "error", err)
		device.Terminate()
		_ = conn.CloseWithReason(websocket.CloseGoingAway, "producer stopped")
		return
	}

	device.MarkClosed()

	drainCtx := ctx
	if s.cfg.Server.DrainTimeout > 0 {
		var drainCancel context.CancelFunc
		drainCtx, drainCancel = context.WithTimeout(ctx, s.cfg.Server.DrainTimeout)
		defer drainCancel()
	}
	if err := device.WaitDrained(drainCtx); err != nil {
		log.Warn("Output device did not drain", "error", err)
		device.Terminate()
		_ = conn.CloseWithReason(websocket.CloseGoingAway, "delivery interrupted")
		return
	}

	log.Info("Stream completed")
	_ = conn.CloseWithReason(websocket.CloseNormalClosure, "done")
}
