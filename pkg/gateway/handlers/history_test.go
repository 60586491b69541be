package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/midas/pkg/repair/history"
)

type listStore struct {
	got     []history.ListOptions
	records []history.Record
}

func (s *listStore) Save(context.Context, history.Record) error { return nil }

func (s *listStore) List(_ context.Context, opts history.ListOptions) ([]history.Record, error) {
	s.got = append(s.got, opts)
	return s.records, nil
}

func (s *listStore) Close() error { return nil }

func TestHistoryHandler_DeviceFilter(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want history.ListOptions
	}{
		{"query", "/v1/history?device_id=kiosk-1&device_model=pixel+7&limit=5",
			history.ListOptions{DeviceID: "kiosk-1", DeviceModel: "pixel 7", Limit: 5}},
		{"path", "/v1/history/kiosk-2", history.ListOptions{DeviceID: "kiosk-2"}},
		{"path wins over query", "/v1/history/kiosk-2?device_id=kiosk-3", history.ListOptions{DeviceID: "kiosk-2"}},
		{"none", "/v1/history", history.ListOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &listStore{records: []history.Record{{ID: "r1", SessionID: "s1", DeviceID: tt.want.DeviceID}}}
			mux := http.NewServeMux()
			mux.Handle("GET /v1/history", HistoryHandler{Store: store})
			mux.Handle("GET /v1/history/{device_id}", HistoryHandler{Store: store})

			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if len(store.got) != 1 || store.got[0] != tt.want {
				t.Fatalf("opts=%+v, want %+v", store.got, tt.want)
			}
			var resp struct {
				Records []history.Record `json:"records"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(resp.Records) != 1 || resp.Records[0].ID != "r1" {
				t.Fatalf("records=%+v", resp.Records)
			}
		})
	}
}

func TestHistoryHandler_BadLimit(t *testing.T) {
	store := &listStore{}
	rr := httptest.NewRecorder()
	HistoryHandler{Store: store}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=0", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(store.got) != 0 {
		t.Fatalf("List called with invalid limit")
	}
}
