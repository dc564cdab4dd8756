// Package ipc implements the Control Plane: a Unix-domain-socket server
// accepting ping/create_task_schedule/cancel_task_schedule/list_scheduled
// requests from the host web application. One goroutine handles each
// accepted connection, per spec.md 5's "thread-per-connection" model.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/dueindex"
	"github.com/Datahenge/btu-scheduler-daemon/internal/fifo"
	"github.com/Datahenge/btu-scheduler-daemon/internal/metrics"
	"github.com/Datahenge/btu-scheduler-daemon/internal/obslog"
)

// IPCError wraps a failure to set up the control socket (removing a stale
// socket file or listening), returned by ListenAndServe. Per-connection
// failures are not returned: they are logged or answered with an error
// reply, the connection is closed, and the accept loop continues.
type IPCError struct {
	Op  string
	Err error
}

func (e *IPCError) Error() string {
	return fmt.Sprintf("ipc: %s: %v", e.Op, e.Err)
}

func (e *IPCError) Unwrap() error { return e.Err }

// bufferSize matches the original daemon's fixed-size read: large enough
// for any request this protocol defines, small enough that a slow/hostile
// client can't block the handler goroutine reading to EOF.
const bufferSize = 1024

// Request is the JSON message read from each connection.
type Request struct {
	RequestType    string  `json:"request_type"`
	RequestContent *string `json:"request_content"`
}

// Index is the subset of dueindex.Index the Control Plane needs to
// satisfy cancel_task_schedule and list_scheduled.
type Index interface {
	CancelAll(ctx context.Context, scheduleID string) (int, error)
	ListAll(ctx context.Context) ([]dueindex.Firing, error)
}

var _ Index = (*dueindex.Index)(nil)

// Server accepts connections on a Unix domain socket and dispatches each
// request to the shared FIFO queue and Due-Time Index.
type Server struct {
	socketPath  string
	groupOwner  string
	queue       *fifo.Queue
	index       Index
	rateLimiter *rateLimiter
}

// NewServer constructs a Server. socketPath is the filesystem path to
// bind; groupOwner, if non-empty, is a POSIX group name the socket file
// is chowned to after creation (spec.md 6: mode 0775, group-writable).
func NewServer(socketPath, groupOwner string, queue *fifo.Queue, index Index, rdb *redis.Client) *Server {
	return &Server{
		socketPath:  socketPath,
		groupOwner:  groupOwner,
		queue:       queue,
		index:       index,
		rateLimiter: newRateLimiter(rdb),
	}
}

// ListenAndServe creates (replacing any stale file) the socket, sets its
// permissions and ownership, then accepts connections until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if err := os.Remove(s.socketPath); err != nil {
			return &IPCError{Op: "remove stale socket", Err: err}
		}
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return &IPCError{Op: "listen", Err: err}
	}
	defer listener.Close()

	if err := os.Chmod(s.socketPath, 0775); err != nil {
		obslog.Log.Warn().Err(err).Msg("failed to chmod control socket")
	}
	if s.groupOwner != "" {
		if err := chownToGroup(s.socketPath, s.groupOwner); err != nil {
			obslog.Log.Warn().Err(err).Str("group", s.groupOwner).Msg("failed to chown control socket")
		}
	}

	obslog.Log.Info().Str("path", s.socketPath).Msg("control plane listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				obslog.Log.Error().Err(err).Msg("control plane accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, bufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		obslog.Log.Warn().Err(err).Msg("control plane read failed")
		return
	}
	trimmed := strings.TrimRight(string(buf[:n]), "\x00")

	var req Request
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		metrics.IPCRequestsTotal.WithLabelValues("unknown", "error").Inc()
		conn.Write([]byte(fmt.Sprintf("error: could not parse request: %v", err)))
		return
	}

	allowed, err := s.rateLimiter.Allow(ctx, req.RequestType)
	if err != nil {
		obslog.Log.Warn().Err(err).Msg("rate limiter check failed, failing open")
	} else if !allowed {
		metrics.IPCRequestsTotal.WithLabelValues(req.RequestType, "rate_limited").Inc()
		conn.Write([]byte("error: rate limit exceeded"))
		return
	}

	response := s.dispatch(ctx, req)
	conn.Write([]byte(response))
}

func (s *Server) dispatch(ctx context.Context, req Request) string {
	switch req.RequestType {
	case "ping":
		metrics.IPCRequestsTotal.WithLabelValues("ping", "ok").Inc()
		return "pong"

	case "create_task_schedule":
		if req.RequestContent == nil || *req.RequestContent == "" {
			metrics.IPCRequestsTotal.WithLabelValues("create_task_schedule", "rejected").Inc()
			return "error: create_task_schedule requires request_content"
		}
		s.queue.Push(*req.RequestContent)
		metrics.IPCRequestsTotal.WithLabelValues("create_task_schedule", "ok").Inc()
		return fmt.Sprintf("queued schedule %q for projection", *req.RequestContent)

	case "cancel_task_schedule":
		if req.RequestContent == nil || *req.RequestContent == "" {
			metrics.IPCRequestsTotal.WithLabelValues("cancel_task_schedule", "rejected").Inc()
			return "error: cancel_task_schedule requires request_content"
		}
		removed, err := s.index.CancelAll(ctx, *req.RequestContent)
		if err != nil {
			metrics.IPCRequestsTotal.WithLabelValues("cancel_task_schedule", "error").Inc()
			return fmt.Sprintf("error: %v", err)
		}
		if removed == 0 {
			metrics.IPCRequestsTotal.WithLabelValues("cancel_task_schedule", "ok").Inc()
			return fmt.Sprintf("no armed firings found for schedule %q", *req.RequestContent)
		}
		metrics.IPCRequestsTotal.WithLabelValues("cancel_task_schedule", "ok").Inc()
		return fmt.Sprintf("Successfully cancelled %d firing(s) for schedule %q", removed, *req.RequestContent)

	case "list_scheduled":
		firings, err := s.index.ListAll(ctx)
		if err != nil {
			metrics.IPCRequestsTotal.WithLabelValues("list_scheduled", "error").Inc()
			return fmt.Sprintf("error: %v", err)
		}
		metrics.IPCRequestsTotal.WithLabelValues("list_scheduled", "ok").Inc()
		payload, err := json.Marshal(firings)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(payload)

	default:
		metrics.IPCRequestsTotal.WithLabelValues("unknown", "rejected").Inc()
		return fmt.Sprintf("error: Client message has an unhandled 'request_type': %s", req.RequestType)
	}
}

func chownToGroup(path, groupName string) error {
	grp, err := user.LookupGroup(groupName)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return err
	}
	return os.Chown(path, -1, gid)
}
