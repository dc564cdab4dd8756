package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/dueindex"
	"github.com/Datahenge/btu-scheduler-daemon/internal/fifo"
)

type fakeIndex struct {
	cancelCalls []string
	cancelN     int
	firings     []dueindex.Firing
}

func (f *fakeIndex) CancelAll(_ context.Context, scheduleID string) (int, error) {
	f.cancelCalls = append(f.cancelCalls, scheduleID)
	return f.cancelN, nil
}

func (f *fakeIndex) ListAll(_ context.Context) ([]dueindex.Firing, error) {
	return f.firings, nil
}

func startTestServer(t *testing.T, idx Index) (string, *fifo.Queue) {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "control.sock")

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("could not start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})

	queue := fifo.New()
	server := NewServer(socketPath, "", queue, idx, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() {
		for {
			if _, err := os.Stat(socketPath); err == nil {
				close(ready)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	go server.ListenAndServe(ctx)

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control socket to appear")
	}

	return socketPath, queue
}

func sendRequest(t *testing.T, socketPath string, req Request) string {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	buf := make([]byte, bufferSize)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(buf[:n])
}

func TestPingRepliesWithPong(t *testing.T) {
	idx := &fakeIndex{}
	socketPath, _ := startTestServer(t, idx)

	resp := sendRequest(t, socketPath, Request{RequestType: "ping"})
	if resp != "pong" {
		t.Fatalf("expected 'pong', got %q", resp)
	}
}

func TestCreateTaskSchedulePushesToFIFO(t *testing.T) {
	idx := &fakeIndex{}
	socketPath, queue := startTestServer(t, idx)

	content := "S1"
	sendRequest(t, socketPath, Request{RequestType: "create_task_schedule", RequestContent: &content})

	head, ok := queue.Pop()
	if !ok {
		t.Fatal("expected FIFO to contain the created schedule id")
	}
	if head != "S1" {
		t.Fatalf("expected S1, got %q", head)
	}
}

func TestCancelTaskScheduleInvokesCancelAll(t *testing.T) {
	idx := &fakeIndex{cancelN: 2}
	socketPath, _ := startTestServer(t, idx)

	content := "S1"
	resp := sendRequest(t, socketPath, Request{RequestType: "cancel_task_schedule", RequestContent: &content})

	if len(idx.cancelCalls) != 1 || idx.cancelCalls[0] != "S1" {
		t.Fatalf("expected CancelAll called with S1, got %v", idx.cancelCalls)
	}
	// spec.md 8 S3: a conformant client checks the response for this
	// literal substring to recognize success.
	if !strings.Contains(resp, "Successfully cancelled") {
		t.Fatalf("expected response to contain 'Successfully cancelled', got %q", resp)
	}
}

func TestUnknownRequestTypeRepliesWithError(t *testing.T) {
	idx := &fakeIndex{}
	socketPath, _ := startTestServer(t, idx)

	resp := sendRequest(t, socketPath, Request{RequestType: "bogus"})
	// spec.md 8 S6: the response must contain this literal substring.
	if !strings.Contains(resp, "unhandled 'request_type'") {
		t.Fatalf("expected response to contain \"unhandled 'request_type'\", got %q", resp)
	}
}

func TestCreateTaskScheduleRequiresContent(t *testing.T) {
	idx := &fakeIndex{}
	socketPath, _ := startTestServer(t, idx)

	resp := sendRequest(t, socketPath, Request{RequestType: "create_task_schedule"})
	if resp[:6] != "error:" {
		t.Fatalf("expected an error response for missing content, got %q", resp)
	}
}

func TestListScheduledReturnsJSON(t *testing.T) {
	idx := &fakeIndex{firings: []dueindex.Firing{{ScheduleID: "S1", UnixTS: 1000}}}
	socketPath, _ := startTestServer(t, idx)

	resp := sendRequest(t, socketPath, Request{RequestType: "list_scheduled"})

	var firings []dueindex.Firing
	if err := json.Unmarshal([]byte(resp), &firings); err != nil {
		t.Fatalf("expected JSON response, got %q: %v", resp, err)
	}
	if len(firings) != 1 || firings[0].ScheduleID != "S1" {
		t.Fatalf("unexpected firings: %+v", firings)
	}
}
