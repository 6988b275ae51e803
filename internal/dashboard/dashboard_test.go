package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/syncer"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Addr:   "localhost:0", // random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// The accept runs concurrently; wait for registration.
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{
		Addr:   "localhost:0",
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	server.BroadcastEvent(MessageTypeItemSynced, ItemEventData{
		ID: 7, Operation: "create", Table: "set_logs", Attempts: 1,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeItemSynced {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeItemSynced)
	}

	var data ItemEventData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal event data: %v", err)
	}
	if data.ID != 7 || data.Table != "set_logs" {
		t.Errorf("event data = %+v", data)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dialTestClient(t, ctx, server)
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() < numClients && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count := server.ClientCount(); count != numClients {
		t.Errorf("client count = %d, want %d", count, numClients)
	}
}

func TestHandlerItemSynced(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.UpdateStats(2, 0, true, "")
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeStats {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeStats)
	}

	handler.OnItemSynced(&queue.Item{ID: 1, Operation: queue.OpCreate, Table: "set_logs"})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeItemSynced {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeItemSynced)
	}

	// The event is followed by a stats snapshot with the count walked down.
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}
	if stats.QueueLength != 1 {
		t.Errorf("queue length = %d, want 1", stats.QueueLength)
	}
}

func TestHandlerDistinguishesDeadLetters(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)
	item := &queue.Item{ID: 1, Operation: queue.OpCreate, Table: "set_logs", Attempts: 5}

	// A plain failure stays an item_failed event.
	handler.OnItemFailed(item, fmt.Errorf("remote unreachable"))
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeItemFailed {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeItemFailed)
	}
	readMessage(t, ctx, conn) // stats

	// Retry exhaustion becomes a dead_letter event.
	handler.OnItemFailed(item, fmt.Errorf("%w after 5 attempts", syncer.ErrRetryExhausted))
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeDeadLetter {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeDeadLetter)
	}
	readMessage(t, ctx, conn) // stats

	if got := handler.Stats().DeadLetters; got != 1 {
		t.Errorf("dead letters = %d, want 1", got)
	}
}

func TestHandlerRevalidated(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnRevalidated("exercise_definitions", 42, nil)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRevalidated {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeRevalidated)
	}
	var data RevalidatedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal revalidated data: %v", err)
	}
	if data.Table != "exercise_definitions" || data.Rows != 42 || data.Error != "" {
		t.Errorf("revalidated data = %+v", data)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("failed to get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("health status = %q, want ok", body.Status)
	}
}
