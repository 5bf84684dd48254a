package reviewclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-arena/pkg/reviewdto"
)

func TestReviewPostsPGN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/review" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req reviewdto.ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.PGN != "1. e4 e5" || req.Depth != 8 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(reviewdto.ReviewReport{ID: "r1", Classifications: []string{"best", "good"}})
	}))
	defer srv.Close()

	rep, err := NewClient(srv.URL).Review(context.Background(), "1. e4 e5", 8)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if rep.ID != "r1" || len(rep.Classifications) != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestAPIErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(reviewdto.ErrorResponse{Code: "invalid_pgn", Message: "invalid PGN"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Review(context.Background(), "garbage", 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Body.Code != "invalid_pgn" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestEngineMoveRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(reviewdto.EngineMoveResponse{Move: "e7e5", SAN: "e5"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(2), WithTimeout(5*time.Second))
	resp, err := c.EngineMove(context.Background(), reviewdto.EngineMoveRequest{FEN: "startpos", Elo: 1200})
	if err != nil {
		t.Fatalf("EngineMove: %v", err)
	}
	if resp.Move != "e7e5" || calls.Load() != 2 {
		t.Fatalf("resp = %+v after %d calls", resp, calls.Load())
	}
}
