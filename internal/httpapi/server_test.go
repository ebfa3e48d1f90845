package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/srijanshukla18/scx-slo/internal/admission"
	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine := scxslo.NewEngine(scxslo.Options{})
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewServer(":0", engine, admission.NewAllowAll(), admission.NewAuditLog(), log.WithField("test", true))
}

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUpsertThenGetWorkload(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(upsertWorkloadRequest{Namespace: "critical", WorkloadName: "payment-api", BudgetMS: 50, Importance: 90})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/workloads/1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /v1/workloads/1: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/v1/workloads/1")
	if err != nil {
		t.Fatalf("GET /v1/workloads/1: %v", err)
	}
	defer getResp.Body.Close()
	var cfg scxslo.SloCfg
	if err := json.NewDecoder(getResp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.BudgetNS != 50_000_000 || cfg.Importance != 90 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestRemoveWorkload(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(upsertWorkloadRequest{BudgetMS: 100, Importance: 50})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/workloads/2", bytes.NewReader(body))
	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()

	delReq, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/workloads/2", nil)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("DELETE /v1/workloads/2: %v", err)
	}
	defer delResp.Body.Close()

	getResp, err := http.Get(ts.URL + "/v1/workloads/2")
	if err != nil {
		t.Fatalf("GET /v1/workloads/2: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after removal, got %d", getResp.StatusCode)
	}
}

func TestUpsertWorkloadDeniedByDataClassificationPredicate(t *testing.T) {
	engine := scxslo.NewEngine(scxslo.Options{})
	admit := admission.NewFromConfig(admission.Config{
		DefaultAction: "allow",
		Rules: []admission.Rule{
			{
				Name:   "deny-restricted",
				Effect: "deny",
				Reason: "restricted_data_requires_manual_review",
				Match:  admission.RuleMatch{DataClassification: "restricted"},
			},
		},
	})
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	srv := NewServer(":0", engine, admit, admission.NewAuditLog(), log.WithField("test", true))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(upsertWorkloadRequest{Namespace: "payments", WorkloadName: "ledger", DataClassification: "restricted", BudgetMS: 50, Importance: 90})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/workloads/3", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /v1/workloads/3: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if _, ok := engine.GetConfig(scxslo.WID(3)); ok {
		t.Fatalf("expected denied workload to not be configured")
	}
}

func TestCountersEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/counters")
	if err != nil {
		t.Fatalf("GET /v1/counters: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap scxslo.CounterSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode counter snapshot: %v", err)
	}
}

func TestEventsRawEndpointIsEmptyOnIdleEngine(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/events/raw?max=10")
	if err != nil {
		t.Fatalf("GET /v1/events/raw: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body)%scxslo.EventWireSize != 0 {
		t.Fatalf("raw event body length %d is not a multiple of the wire size %d", len(body), scxslo.EventWireSize)
	}
	if len(body) != 0 {
		t.Fatalf("expected no raw events on an idle engine, got %d bytes", len(body))
	}
}

func TestMetricsSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/metrics")
	if err != nil {
		t.Fatalf("GET /v1/metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestEventsEndpointReturnsEmptyWhenIdle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/events?max=10")
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Events  []scxslo.DeadlineEvent `json:"events"`
		Dropped uint64                 `json:"dropped"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 0 {
		t.Fatalf("expected no events on an idle engine, got %d", len(out.Events))
	}
}
