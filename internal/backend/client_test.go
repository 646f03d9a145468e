package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/api/", Token: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestMasterDataRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/admin/master-data" {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"success":true,"data":{"schools":[{"code":"SCOPE","name":"SCOPE"}],"programs":[],"academicYears":[{"id":"1","year":"2024-25"}]}}`)
	})

	data, err := c.MasterData(context.Background())
	if err != nil {
		t.Fatalf("MasterData failed: %v", err)
	}
	if len(data.Schools) != 1 || data.AcademicYears[0].Year != "2024-25" {
		t.Fatalf("data=%+v", data)
	}
}

func TestMasterDataLegacyFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"message":"Master data unavailable"}`)
	})

	_, err := c.MasterData(context.Background())
	var be *Error
	if !errors.As(err, &be) || be.Message != "Master data unavailable" || be.Status != http.StatusOK {
		t.Fatalf("err=%v", err)
	}
}

func TestHTTPStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"Admin role required"}`)
	})

	_, err := c.MasterData(context.Background())
	if StatusOf(err) != http.StatusForbidden {
		t.Fatalf("status=%d err=%v", StatusOf(err), err)
	}
	if !strings.Contains(err.Error(), "Admin role required") {
		t.Fatalf("err=%v", err)
	}
}

func TestBulkCreateSendsOneRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/api/admin/faculty/bulk" {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string][]map[string]any
		if err := sonic.Unmarshal(body, &payload); err != nil || len(payload["faculty"]) != 3 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"success":true,"data":{"created":3,"failed":0,"errors":[]}}`)
	})

	records := []map[string]any{{"employeeId": "1"}, {"employeeId": "2"}, {"employeeId": "3"}}
	result, err := c.BulkCreate(context.Background(), "faculty", records)
	if err != nil {
		t.Fatalf("BulkCreate failed: %v", err)
	}
	if result.Created != 3 || result.Failed != 0 || calls.Load() != 1 {
		t.Fatalf("result=%+v calls=%d", result, calls.Load())
	}
}

func TestAutoAssignPassThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = sonic.Unmarshal(body, &payload)
		if r.URL.Path != "/api/admin/panels/auto-assign" || payload["school"] != "SCOPE" || payload["buffer"] != float64(2) {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"success":true,"data":{"assigned":12,"unassigned":1}}`)
	})

	academic := model.AcademicContext{School: "SCOPE", Programme: "BCE", Year: "2024-25"}
	out, err := c.AutoAssignPanels(context.Background(), academic, map[string]any{"buffer": 2})
	if err != nil {
		t.Fatalf("AutoAssignPanels failed: %v", err)
	}
	if out["assigned"] != float64(12) {
		t.Fatalf("out=%v", out)
	}
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.MasterData(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v, want ErrNotConfigured", err)
	}
	c, err := NewClient(Config{BaseURL: "localhost:4000/api/"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.BaseURL() != "http://localhost:4000/api" {
		t.Fatalf("base=%q", c.BaseURL())
	}
}
