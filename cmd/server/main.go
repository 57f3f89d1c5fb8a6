package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/pdfocr/internal/batch"
	"github.com/toricodesthings/pdfocr/internal/config"
	"github.com/toricodesthings/pdfocr/internal/extract"
	"github.com/toricodesthings/pdfocr/internal/logging"
	"github.com/toricodesthings/pdfocr/internal/ocr"
	"github.com/toricodesthings/pdfocr/internal/pdfdoc"
	"github.com/toricodesthings/pdfocr/internal/pipeline"
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	pagesDone     int64
	pagesFailed   int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) addPages(done, failed int) {
	m.mu.Lock()
	m.pagesDone += int64(done)
	m.pagesFailed += int64(failed)
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

type server struct {
	cfg        config.Config
	log        logrus.FieldLogger
	proc       *pipeline.Processor
	requestSem *semaphore.Weighted

	// Per-IP rate limiters
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	metrics serverMetrics
}

func newServer(cfg config.Config, engine ocr.Engine, log logrus.FieldLogger) *server {
	opener := pipeline.PDFOpener(pdfdoc.Options{MaxBytes: cfg.MaxPDFBytes, Log: log})
	return &server{
		cfg:        cfg,
		log:        log,
		proc:       pipeline.New(pipeline.OptionsFromConfig(cfg), engine, pipeline.WithOpener(opener), pipeline.WithLogger(log)),
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		limiters:   map[string]*rate.Limiter{},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("/extract",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleExtract)))))

	mux.HandleFunc("/metadata",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleMetadata)))))

	return s.withLogging(s.withRecovery(mux))
}

func main() {
	cfg, err := config.Load(os.Getenv("PDFOCR_CONFIG"))
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateServer(); err != nil {
		panic(err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	engine, err := ocr.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("ocr engine")
	}
	s := newServer(cfg, engine, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go s.cleanupRateLimiters()

	log.WithFields(logrus.Fields{
		"addr":           srv.Addr,
		"engine":         engine.Name(),
		"max_concurrent": cfg.MaxConcurrentRequests,
	}).Info("pdfocr listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}

func (s *server) cleanupRateLimiters() {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		s.log.WithFields(logrus.Fields{
			"active":     active,
			"total":      total,
			"goroutines": runtime.NumGoroutine(),
			"mem_mb":     m.Alloc / (1 << 20),
			"rasters":    s.proc.Rasterizer().Live(),
		}).Info("stats")

		s.limMu.Lock()
		s.limiters = map[string]*rate.Limiter{}
		s.limMu.Unlock()
	}
}

// ---------- Handlers ----------

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK
	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"active": active,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()
	s.metrics.mu.RLock()
	done, failed := s.metrics.pagesDone, s.metrics.pagesFailed
	s.metrics.mu.RUnlock()
	rz := s.proc.Rasterizer()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"pagesDone":      done,
		"pagesFailed":    failed,
		"liveRasters":    rz.Live(),
		"peakRasters":    rz.Peak(),
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var pages *batch.Range
	if q := strings.TrimSpace(r.URL.Query().Get("pages")); q != "" {
		rng, err := batch.ParseRange(q)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_page_range", sanitizeError(err))
			return
		}
		pages = &rng
	}

	up, ok := s.receivePDF(w, r)
	if !ok {
		return
	}
	defer up.Cleanup()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	doc, err := s.proc.Run(ctx, pipeline.Request{
		Path:     up.Path,
		Password: r.Header.Get("X-PDF-Password"),
		Pages:    pages,
	})
	if err != nil {
		s.writeRunErr(w, err)
		return
	}
	failed := len(doc.FailedPages())
	s.metrics.addPages(len(doc.Pages)-failed, failed)
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	up, ok := s.receivePDF(w, r)
	if !ok {
		return
	}
	defer up.Cleanup()

	meta, err := s.proc.Metadata(r.Context(), up.Path, r.Header.Get("X-PDF-Password"))
	if err != nil {
		s.writeRunErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// receivePDF stores the request body and checks it is a PDF. On failure the
// response has been written.
func (s *server) receivePDF(w http.ResponseWriter, r *http.Request) (extract.Upload, bool) {
	up, err := extract.SaveBodyToTemp(r.Body, r.Header.Get("X-File-Name"), s.cfg.MaxPDFBytes)
	if err != nil {
		if errors.Is(err, extract.ErrTooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "too_large", sanitizeError(err))
			return extract.Upload{}, false
		}
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return extract.Upload{}, false
	}
	if !up.IsPDF() {
		up.Cleanup()
		writeErr(w, http.StatusUnsupportedMediaType, "not_pdf", "body is "+up.MIMEType+", not a PDF")
		return extract.Upload{}, false
	}
	return up, true
}

func (s *server) writeRunErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("extraction failed")
	}
	writeErr(w, status, code, sanitizeError(err))
}

// classify maps pipeline errors to an HTTP status and error code.
func classify(err error) (int, string) {
	var re *batch.RangeError
	var ee *pdfdoc.EncryptedError
	var oe *pdfdoc.OpenError
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, "invalid_page_range"
	case errors.As(err, &ee):
		return http.StatusUnauthorized, "password_required"
	case errors.As(err, &oe):
		return http.StatusUnprocessableEntity, "unprocessable_document"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func (s *server) withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	shared := s.cfg.InternalSharedSecret
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Auth")
		if shared == "" || subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func (s *server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requestSem.TryAcquire(1) {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next(w, r)
	}
}

func (s *server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := s.getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("panic", err).Error("recovered")
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     sanitizeLogString(r.URL.Path),
			"status":   ww.status,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("request")
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func (s *server) getRateLimiter(ip string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if l, ok := s.limiters[ip]; ok {
		return l
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	s.limiters[ip] = limiter
	return limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
