//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/lodge/internal/api"
	"github.com/dyluth/lodge/internal/config"
	"github.com/dyluth/lodge/internal/instance"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/notify"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

type apiClient struct {
	t    *testing.T
	base string
}

func (c *apiClient) do(method, path, actor string, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderTenantID, "acme")
	req.Header.Set(api.HeaderActorID, actor)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// TestLodged_EndToEnd drives a running lodged against real Redis: concurrent
// edits, a disposition with its notification, and the rebuilt summary.
func TestLodged_EndToEnd(t *testing.T) {
	cfg := config.Defaults()
	cfg.Instance = "integration"
	cfg.Redis.URL = setupRedis(t)
	cfg.HTTP.Addr = freeAddr(t)
	cfg.Rebuild.PollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("lodged did not stop")
		}
	})

	client := &apiClient{t: t, base: "http://" + cfg.HTTP.Addr}
	require.Eventually(t, func() bool {
		resp, err := http.Get(client.base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	store, err := instance.Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()
	sub, err := notify.Subscribe(ctx, store)
	require.NoError(t, err)
	defer sub.Close()

	var doc datasheet.Document
	status := client.do(http.MethodPost, "/v1/documents", "alice", lifecycle.NewDocument{
		Header: datasheet.Header{Name: "Cooling water pump", Tag: "P-101", ProjectID: "proj-7", Discipline: "mechanical"},
		Layout: []datasheet.Subsection{{
			ID: "performance", Title: "Performance",
			Fields: []datasheet.FieldDefinition{
				{DefinitionID: "flow", Label: "Flow", Type: datasheet.FieldTypeNumber, UOM: "m3/h"},
			},
		}},
	}, &doc)
	require.Equal(t, http.StatusCreated, status)

	const writers = 20
	var wg sync.WaitGroup
	codes := make(chan int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := fmt.Sprintf("%d", 100+i)
			codes <- client.do(http.MethodPatch, "/v1/documents/"+doc.ID, "alice",
				lifecycle.DocumentUpdate{Values: map[string]*string{"flow": &value}}, nil)
		}(i)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	var page lifecycle.RevisionPage
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/v1/documents/"+doc.ID+"/revisions?page_size=100", "alice", nil, &page))
	assert.Equal(t, int64(writers), page.Total)
	require.Len(t, page.Revisions, writers)
	for i, rev := range page.Revisions {
		assert.Equal(t, writers-i, rev.Sequence)
	}

	require.Equal(t, http.StatusOK, client.do(http.MethodPost, "/v1/documents/"+doc.ID+"/verify", "bob", nil, nil))

	select {
	case n := <-sub.Events():
		assert.Equal(t, doc.ID, n.DocumentID)
		assert.True(t, n.For("alice"))
		assert.Contains(t, n.Message, "verified by bob")
	case err := <-sub.Errors():
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}

	require.Eventually(t, func() bool {
		var summary datasheet.DocumentSummary
		if client.do(http.MethodGet, "/v1/documents/"+doc.ID+"/summary", "alice", nil, &summary) != http.StatusOK {
			return false
		}
		return summary.Status == datasheet.StatusVerified && summary.RevisionCount == writers
	}, 10*time.Second, 100*time.Millisecond)
}
