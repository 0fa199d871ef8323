package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/httpapi"
	"storefront/internal/hub"
	"storefront/internal/store"
	"storefront/internal/store/postgres"
	"storefront/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type broadcastPayload struct {
	Message string `json:"message"`
}

const zeroUUID = "00000000-0000-0000-0000-000000000000"

const (
	closeRegistrationRequired = 4001
	closeInvalidUser          = 4002
)

// awaitRegister waits for the first parsed register frame. A non-zero
// close status means the session must be rejected with the paired reason.
func awaitRegister(registered <-chan hub.RegisterMessage, timeout time.Duration) (hub.RegisterMessage, uint32, string) {
	select {
	case reg := <-registered:
		if _, err := uuid.Parse(reg.UserID); err != nil {
			return hub.RegisterMessage{}, closeInvalidUser, "invalid user"
		}
		return reg, 0, ""
	case <-time.After(timeout):
		return hub.RegisterMessage{}, closeRegistrationRequired, "registration required"
	}
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("realtime-gateway")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		// First frame must register the user; the deadline keeps idle
		// anonymous connections from piling up.
		registered := make(chan hub.RegisterMessage, 1)
		go func() {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			if parsed, ok := hub.ParseRegister([]byte(msg)); ok {
				registered <- parsed
			}
		}()

		reg, closeStatus, reason := awaitRegister(registered, cfg.RegisterTimeout)
		if closeStatus != 0 {
			_ = session.Close(closeStatus, reason)
			return
		}

		client := &hub.Client{ID: uuid.NewString(), UserID: reg.UserID, Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
			// Frames after registration carry nothing the gateway acts on.
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "realtime-gateway")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	offset, err := st.GetOffset(context.Background(), store.ConsumerGateway)
	if err != nil {
		log.Printf("load offset error: %v", err)
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	if offset.LastEventID == "" {
		offset.LastEventID = zeroUUID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	var running int32

	go func() {
		log.Printf("realtime-gateway listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			events, err := st.ListOutboxEvents(ctx, offset, cfg.BatchSize)
			cancel()
			if err != nil {
				log.Printf("poll outbox error: %v", err)
			} else {
				for _, event := range events {
					offset.LastEventTime = event.CreatedAt
					offset.LastEventID = event.EventID
					dispatch(h, event)
				}
				if len(events) > 0 {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if err := st.UpdateOffset(ctx, store.ConsumerGateway, offset); err != nil {
						log.Printf("update offset error: %v", err)
					}
					cancel()
				}
			}
			atomic.StoreInt32(&running, 0)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func dispatch(h *hub.Hub, event store.OutboxEvent) {
	switch event.Type {
	case store.EventNotificationCreated:
		env := eventEnvelope{Event: "notification", Payload: event.Payload, CreatedAt: event.CreatedAt}
		payload, _ := json.Marshal(env)
		h.PushToUser(event.UserID, payload)
	case store.EventBroadcastMessage:
		var parsed broadcastPayload
		if err := json.Unmarshal(event.Payload, &parsed); err != nil {
			log.Printf("broadcast payload error: %v", err)
			return
		}
		raw, _ := json.Marshal(parsed.Message)
		env := eventEnvelope{Event: "notification-message", Payload: raw, CreatedAt: event.CreatedAt}
		payload, _ := json.Marshal(env)
		if event.UserID == "" || event.UserID == zeroUUID {
			h.Broadcast(payload)
		} else {
			h.PushToUser(event.UserID, payload)
		}
	}
}
