package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventcheckin/internal/attendee"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestRegisterKeepsAccessToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/stations/register":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"access_token":"acc","refresh_token":"ref"}`))
		case "/v1/attendees":
			gotAuth = r.Header.Get("Authorization")
			if r.URL.Query().Get("q") != "ada lovelace" {
				t.Errorf("query = %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"attendees":[{"id":"a-1","name":"Ada","current_status":"IN","total_time_spent":"60 seconds"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	tokens, err := c.Register(context.Background(), "gate-1")
	if err != nil || tokens.RefreshToken != "ref" {
		t.Fatalf("register = %+v, %v", tokens, err)
	}
	list, err := c.Search(context.Background(), "ada lovelace")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer acc" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if len(list) != 1 || list[0].CurrentStatus != attendee.In || list[0].TotalTimeSpent != 60 {
		t.Errorf("list = %+v", list)
	}
}

func TestErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/attendees/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"attendee not found"}`))
		case "/v1/attendees/a-1/time-in":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"ALREADY_INSIDE","message":"already inside","attendee":{"id":"a-1","current_status":"IN"}}`))
		case "/v1/attendees/a-1/time-out":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"INTERNAL","message":"internal error"}`))
		case "/v1/attendees/a-1":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"INVALID_ARGUMENT","message":"no fields to update"}`))
		case "/v1/attendees":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"CONFLICT","message":"email already registered"}`))
		case "/healthz":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	})
	ctx := context.Background()

	if _, err := c.FetchByID(ctx, "missing"); !errors.Is(err, attendee.ErrNotFound) {
		t.Errorf("404 = %v", err)
	}

	_, err := c.TimeIn(ctx, "a-1")
	var rule *attendee.RuleError
	if !errors.As(err, &rule) || rule.Violation != attendee.AlreadyInside || rule.Attendee.CurrentStatus != attendee.In {
		t.Errorf("409 rule = %#v", err)
	}

	_, err = c.TimeOut(ctx, "a-1")
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("500 = %v", err)
	}

	if _, err := c.UpdateFields(ctx, "a-1", attendee.Patch{}); !errors.Is(err, attendee.ErrInvalid) {
		t.Errorf("400 = %v", err)
	}

	_, err = c.Create(ctx, attendee.Registration{Name: "Ada", Email: "ada@example.com"})
	if !IsStatus(err, http.StatusConflict) || errors.As(err, &rule) {
		t.Errorf("plain 409 = %v", err)
	}

	err = c.Health(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway || se.Message != "upstream down" {
		t.Errorf("non-json error = %#v", err)
	}
}

func TestContextCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Toggle(ctx, "a-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}
