package rq

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestWriter(t *testing.T) (*miniredis.Miniredis, *Writer) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("could not start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return s, NewWriter(rdb)
}

func TestNewJobRecordDefaults(t *testing.T) {
	job := NewJobRecord("", "desc", []byte("payload"), nil, 0)
	if job.Origin != "default" {
		t.Fatalf("expected default origin, got %q", job.Origin)
	}
	if job.Timeout != 3600 {
		t.Fatalf("expected default timeout 3600, got %d", job.Timeout)
	}
	if job.ID == "" {
		t.Fatal("expected a generated job id")
	}
}

func TestSaveWritesAllRQFields(t *testing.T) {
	s, w := setupTestWriter(t)
	ctx := context.Background()

	job := NewJobRecord("high", "a test job", []byte("data-bytes"), []byte("meta-bytes"), 600)
	if err := w.Save(ctx, job); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	hash, err := s.HGetAll(job.Key())
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}

	required := []string{
		"status", "worker_name", "ended_at", "result_ttl", "enqueued_at",
		"last_heartbeat", "origin", "description", "started_at",
		"created_at", "timeout", "data", "meta",
	}
	for _, field := range required {
		if _, ok := hash[field]; !ok {
			t.Errorf("expected field %q in job hash, got %+v", field, hash)
		}
	}

	if hash["origin"] != "high" {
		t.Errorf("expected origin 'high', got %q", hash["origin"])
	}
	if hash["data"] != "data-bytes" {
		t.Errorf("expected data passthrough, got %q", hash["data"])
	}
}

func TestCreatedAtIsRFC3339Millis(t *testing.T) {
	s, w := setupTestWriter(t)
	ctx := context.Background()

	fixed := time.Date(2025, 6, 15, 10, 30, 0, 250_000_000, time.UTC)
	job := NewJobRecord("default", "", nil, nil, 0)
	job.CreatedAt = fixed

	if err := w.Save(ctx, job); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	hash, err := s.HGetAll(job.Key())
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	want := "2025-06-15T10:30:00.250Z"
	if hash["created_at"] != want {
		t.Fatalf("expected created_at %q, got %q", want, hash["created_at"])
	}
}

func TestEnqueueRegistersQueueAndPushesID(t *testing.T) {
	s, w := setupTestWriter(t)
	ctx := context.Background()

	job := NewJobRecord("high", "", nil, nil, 0)
	if err := w.SaveAndEnqueue(ctx, job); err != nil {
		t.Fatalf("SaveAndEnqueue failed: %v", err)
	}

	members, err := s.SMembers("rq:queues")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != "rq:queue:high" {
		t.Fatalf("expected rq:queue:high registered, got %v", members)
	}

	items, err := s.List("rq:queue:high")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0] != job.ID {
		t.Fatalf("expected job id enqueued, got %v", items)
	}
}

func TestExistsReflectsSavedJobs(t *testing.T) {
	_, w := setupTestWriter(t)
	ctx := context.Background()

	job := NewJobRecord("default", "", nil, nil, 0)

	exists, err := w.Exists(ctx, job.ID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("expected job to not exist before Save")
	}

	if err := w.Save(ctx, job); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exists, err = w.Exists(ctx, job.ID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("expected job to exist after Save")
	}
}

func TestMultipleQueuesAccumulateInRegistry(t *testing.T) {
	s, w := setupTestWriter(t)
	ctx := context.Background()

	for _, origin := range []string{"high", "default", "low"} {
		job := NewJobRecord(origin, "", nil, nil, 0)
		if err := w.SaveAndEnqueue(ctx, job); err != nil {
			t.Fatalf("SaveAndEnqueue failed: %v", err)
		}
	}

	members, err := s.SMembers("rq:queues")
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 distinct queues registered, got %v", members)
	}
}
