// Command targetserver serves local endpoints with controllable failure
// modes so runs can be tried without touching a real service.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type serverOptions struct {
	failRate  float64       // fraction of /flaky requests answered with 503
	delay     time.Duration // fixed latency added by /slow
	limit     float64       // requests per second accepted by /limited
	burst     int
	maxReader int64
}

func main() {
	port := flag.Int("port", 8080, "Listening port")
	failRate := flag.Float64("fail-rate", 0.2, "Fraction of /flaky requests that fail with 503")
	delay := flag.Duration("delay", 200*time.Millisecond, "Latency added by /slow")
	limit := flag.Float64("limit", 50, "Requests per second accepted by /limited before 429")
	flag.Parse()

	log := logrus.New()
	if *port <= 0 {
		log.Fatal("port must be > 0")
	}

	mux := newMux(serverOptions{
		failRate:  *failRate,
		delay:     *delay,
		limit:     *limit,
		burst:     max(int(*limit), 1),
		maxReader: 1 << 20,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	addr := fmt.Sprintf(":%d", *port)
	log.WithField("addr", addr).Info("target server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

func newMux(opts serverOptions, rnd *rand.Rand) *http.ServeMux {
	limiter := rate.NewLimiter(rate.Limit(opts.limit), opts.burst)
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := rnd.Float64() < opts.failRate
		mu.Unlock()
		if fail {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(opts.delay):
		case <-r.Context().Done():
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "delay_ms": opts.delay.Milliseconds()})
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.URL.Path[len("/status/"):])
		if err != nil || code < 100 || code > 599 {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, opts.maxReader))
		respondJSON(w, http.StatusOK, map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": r.Header.Get("X-Request-Id"),
			"bytes":      len(body),
		})
	})
	return mux
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
