package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type echoParams struct {
	Text string `json:"text"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEchoServer() *Server {
	srv := NewServer(testLogger())
	srv.Handle(MethodPing, func(_ context.Context, _ Request) (any, error) {
		return map[string]any{}, nil
	})
	srv.Handle("echo", func(ctx context.Context, req Request) (any, error) {
		var p echoParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, Errorf(CodeInvalidParams, "bad params: %v", err)
		}
		_ = NotifierFrom(ctx)(NotificationMessage, map[string]string{"data": "echoing " + p.Text})
		return p, nil
	})
	srv.Handle("fail", func(_ context.Context, _ Request) (any, error) {
		return nil, errors.New("boom")
	})
	return srv
}

func pipeClient(t *testing.T, srv *Server) *Client {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, serverSide, serverSide)
	}()
	client := NewClient(clientSide)
	t.Cleanup(func() {
		client.Close()
		serverSide.Close()
		cancel()
		<-done
	})
	return client
}

func TestCallRoundTrip(t *testing.T) {
	client := pipeClient(t, newEchoServer())

	notes := make(chan string, 1)
	client.OnNotification(func(method string, params json.RawMessage) {
		notes <- method + " " + string(params)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got echoParams
	if err := client.Call(ctx, "echo", echoParams{Text: "hello"}, &got); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("result: got %q, want %q", got.Text, "hello")
	}

	select {
	case n := <-notes:
		if !strings.HasPrefix(n, NotificationMessage) || !strings.Contains(n, "echoing hello") {
			t.Errorf("notification: got %q", n)
		}
	case <-time.After(2 * time.Second):
		t.Error("no notification received")
	}
}

func TestUnknownMethod(t *testing.T) {
	client := pipeClient(t, newEchoServer())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Call(ctx, "nope", nil, nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("got %v, want *Error", err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("code: got %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestHandlerErrors(t *testing.T) {
	client := pipeClient(t, newEchoServer())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var rpcErr *Error
	if err := client.Call(ctx, "fail", nil, nil); !errors.As(err, &rpcErr) || rpcErr.Code != CodeInternalError || rpcErr.Message != "boom" {
		t.Errorf("fail: got %v", err)
	}
	if err := client.Call(ctx, "echo", []int{1}, nil); !errors.As(err, &rpcErr) || rpcErr.Code != CodeInvalidParams {
		t.Errorf("echo with bad params: got %v", err)
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	srv := newEchoServer()
	called := make(chan struct{}, 1)
	srv.Handle(MethodInitialized, func(_ context.Context, _ Request) (any, error) {
		called <- struct{}{}
		return nil, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/unknown"}` + "\n" +
		`{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n")
	var out strings.Builder
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	select {
	case <-called:
	default:
		t.Error("notification handler not called")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d responses, want 1: %q", len(lines), out.String())
	}
	var resp Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(resp.ID) != "7" || resp.Error != nil {
		t.Errorf("response: got id %s err %v", resp.ID, resp.Error)
	}
}

func TestParseError(t *testing.T) {
	srv := newEchoServer()
	var out strings.Builder
	if err := srv.Serve(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatalf("serve: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("got %+v, want parse error", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Errorf("id: got %s, want null", resp.ID)
	}
}

func TestUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")
	srv := newEchoServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(ctx, sock) }()

	var client *Client
	var err error
	for i := 0; i < 50; i++ {
		if client, err = Dial(sock); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	if err := client.Call(reqCtx, MethodPing, nil, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	cancel()
	srv.Shutdown()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("listen: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("listen did not return after cancel")
	}
}
