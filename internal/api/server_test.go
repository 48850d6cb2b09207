package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whale-watch/internal/dispatch"
	"whale-watch/internal/domain"
	"whale-watch/internal/scanner"
	"whale-watch/internal/settlement"
	"whale-watch/internal/storage/memory"
)

type stubHealth struct {
	health scanner.Health
}

func (s *stubHealth) Health(context.Context) scanner.Health {
	return s.health
}

type apiFixture struct {
	server    *httptest.Server
	movements *memory.MovementStore
	alerts    *memory.AlertStore
	hub       *Hub
	health    *stubHealth
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	movements := memory.NewMovementStore()
	alerts := memory.NewAlertStore()

	registry, err := dispatch.NewRegistry(ctx, dispatch.RegistryOptions{
		Store:  memory.NewSubscriptionStore(),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	orchestrator := settlement.NewOrchestrator(settlement.OrchestratorOptions{
		Movements:   movements,
		Predictions: memory.NewPredictionStore(),
		Ledger:      settlement.NewMemoryLedger(1_000_000, nil),
		Logger:      logger,
	})

	hub := NewHub(logger)
	health := &stubHealth{health: scanner.Health{LastProcessedHeight: 1005, TrackedCount: 0}}

	srv := NewServer(Options{
		Movements:    movements,
		Alerts:       alerts,
		Registry:     registry,
		Orchestrator: orchestrator,
		Health:       health,
		Hub:          hub,
		Logger:       logger,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &apiFixture{server: ts, movements: movements, alerts: alerts, hub: hub, health: health}
}

func (f *apiFixture) addMovement(t *testing.T, id string, kind domain.AssetKind, amount float64, category domain.Category) {
	t.Helper()
	err := f.movements.Insert(context.Background(), &domain.ClassifiedMovement{
		Movement: domain.Movement{
			ID:           id,
			AssetKind:    kind,
			TxHash:       "0x" + id,
			FromAddress:  "0xfrom",
			ToAddress:    "0xto",
			Amount:       amount,
			ObservedAt:   time.Now().UnixMilli(),
			SourceHeight: 1001,
		},
		Classification: domain.Classification{Address: "0xfrom", Category: category, Confidence: 0.8},
	})
	if err != nil {
		t.Fatalf("insert movement: %v", err)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestMovementsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.addMovement(t, "m1", domain.AssetNative, 150, domain.CategoryPrivate)
	f.addMovement(t, "m2", domain.AssetStable, 250_000, domain.CategoryExchangeCold)

	resp, err := http.Get(f.server.URL + "/movements?asset=stable&min_amount=200000")
	if err != nil {
		t.Fatalf("GET /movements: %v", err)
	}
	var body struct {
		Count     int                         `json:"count"`
		Movements []domain.ClassifiedMovement `json:"movements"`
	}
	decodeBody(t, resp, &body)

	if body.Count != 1 || body.Movements[0].Movement.ID != "m2" {
		t.Errorf("expected only m2, got %+v", body)
	}

	resp, err = http.Get(f.server.URL + "/movements?asset=plutonium")
	if err != nil {
		t.Fatalf("GET /movements: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown asset, got %d", resp.StatusCode)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	for i, severity := range []domain.Severity{domain.SeverityCritical, domain.SeverityLow} {
		alert := &domain.Alert{
			ID:                fmt.Sprintf("a%d", i),
			Severity:          severity,
			RecommendedAction: domain.RecommendedAction(severity),
			CreatedAt:         time.Now().UnixMilli(),
		}
		if err := f.alerts.Insert(context.Background(), alert); err != nil {
			t.Fatalf("insert alert: %v", err)
		}
	}

	resp, err := http.Get(f.server.URL + "/alerts?severity=critical&hours=1")
	if err != nil {
		t.Fatalf("GET /alerts: %v", err)
	}
	var body struct {
		Count  int             `json:"count"`
		Alerts []*domain.Alert `json:"alerts"`
	}
	decodeBody(t, resp, &body)

	if body.Count != 1 || body.Alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("expected one critical alert, got %+v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("expected healthy response, got %d %v", resp.StatusCode, body)
	}

	// A failing scan cycle must surface, not hide behind stale data.
	f.health.health.LastCycleError = "fetch tip: source unavailable"
	resp, err = http.Get(f.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("expected degraded response, got %d %v", resp.StatusCode, body)
	}
	if body["last_cycle_error"] == "" {
		t.Error("expected last_cycle_error to be populated")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	payload := `{"target": "http://example.com/hook", "secret": "s3cret", "filter": {"severity": "critical"}}`
	resp, err := http.Post(f.server.URL+"/subscriptions", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /subscriptions: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"subscription_id"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatal("expected a subscription_id")
	}

	// The secret must never appear in any listing.
	resp, err = http.Get(f.server.URL + "/subscriptions")
	if err != nil {
		t.Fatalf("GET /subscriptions: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(raw), "s3cret") {
		t.Error("subscription secret leaked in listing")
	}

	req, _ := http.NewRequest(http.MethodDelete, f.server.URL+"/subscriptions/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /subscriptions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, f.server.URL+"/subscriptions/does-not-exist", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /subscriptions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPredictionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	f.addMovement(t, "m1", domain.AssetStable, 250_000, domain.CategoryUnknown)

	submit := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(f.server.URL+"/predictions", "application/json", bytes.NewReader([]byte(body)))
		if err != nil {
			t.Fatalf("POST /predictions: %v", err)
		}
		return resp
	}

	resp := submit(`{"agent_id": "agent-1", "movement_id": "missing", "claim": "will_pump", "staked_amount": 100}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown movement, got %d", resp.StatusCode)
	}

	resp = submit(`{"agent_id": "agent-1", "movement_id": "m1", "claim": "will_pump", "staked_amount": 100}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var prediction domain.Prediction
	decodeBody(t, resp, &prediction)
	if prediction.State != domain.PredictionOpen || prediction.StakeTxRef == "" {
		t.Errorf("unexpected prediction %+v", prediction)
	}

	resp, err := http.Post(f.server.URL+"/predictions/"+prediction.ID+"/settle", "application/json",
		strings.NewReader(`{"verdict": "correct"}`))
	if err != nil {
		t.Fatalf("POST settle: %v", err)
	}
	var settled domain.Prediction
	decodeBody(t, resp, &settled)
	if settled.State != domain.PredictionSettledCorrect || settled.Reward != 200 {
		t.Errorf("unexpected settlement %+v", settled)
	}

	resp, err = http.Get(f.server.URL + "/predictions/" + prediction.ID)
	if err != nil {
		t.Fatalf("GET /predictions: %v", err)
	}
	var fetched domain.Prediction
	decodeBody(t, resp, &fetched)
	if fetched.State != domain.PredictionSettledCorrect {
		t.Errorf("expected settled_correct, got %s", fetched.State)
	}
}

func TestAlertStream(t *testing.T) {
	f := newAPIFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	published := &domain.Alert{
		ID:                "a1",
		Severity:          domain.SeverityCritical,
		RecommendedAction: domain.ActionCritical,
		CreatedAt:         time.Now().UnixMilli(),
	}
	f.hub.Publish(published)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received domain.Alert
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("read alert from stream: %v", err)
	}
	if received.ID != "a1" || received.Severity != domain.SeverityCritical {
		t.Errorf("unexpected streamed alert %+v", received)
	}
}

func TestDeliveriesEndpoint(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	ctx := context.Background()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	registry, err := dispatch.NewRegistry(ctx, dispatch.RegistryOptions{
		Store:  memory.NewSubscriptionStore(),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	sub, err := registry.Register(ctx, hook.URL, "", domain.SubscriptionFilter{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		Registry:  registry,
		Deliverer: dispatch.NewDeliverer(dispatch.DelivererOptions{AttemptTimeout: 2 * time.Second}),
		Logger:    logger,
	})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := NewServer(Options{
		Movements:  memory.NewMovementStore(),
		Alerts:     memory.NewAlertStore(),
		Registry:   registry,
		Dispatcher: dispatcher,
		Health:     &stubHealth{},
		Logger:     logger,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dispatcher.Publish(&domain.Alert{
		ID:        "a1",
		Severity:  domain.SeverityCritical,
		CreatedAt: time.Now().UnixMilli(),
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(dispatcher.History()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("delivery receipt never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/deliveries")
	if err != nil {
		t.Fatalf("GET /deliveries: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Count      int                      `json:"count"`
		Deliveries []domain.DeliveryAttempt `json:"deliveries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 || len(body.Deliveries) != 1 {
		t.Fatalf("expected one receipt, got %+v", body)
	}
	got := body.Deliveries[0]
	if got.SubscriptionID != sub.ID || got.AlertID != "a1" || got.Outcome != domain.DeliveryDelivered {
		t.Errorf("unexpected receipt %+v", got)
	}
}
