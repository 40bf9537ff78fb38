package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"studycompanion/pkg/queue"
)

func TestJobStatusEndpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := queue.NewRedisJobQueue(client, queue.Config{Stream: "test:documents", Group: "test"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	job, err := q.Enqueue(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	srv, err := New(Config{Jobs: q, Ready: func(ctx context.Context) error { return client.Ping(ctx).Err() }})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/jobs/" + job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got queue.Job
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if got.DocumentID != "doc-1" || got.Status != queue.StatusQueued {
		t.Fatalf("unexpected job: %+v", got)
	}

	missing, err := http.Get(ts.URL + "/jobs/nope")
	if err != nil {
		t.Fatalf("get missing job: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}

	ready, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", ready.StatusCode)
	}
}
