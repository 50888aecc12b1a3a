package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/ledger"
	"github.com/agberohq/agbero/internal/server"
	"github.com/agberohq/agbero/internal/server/handler"
	"github.com/agberohq/agbero/internal/store/memory"
)

// newTestServer builds the full HTTP surface on the in-memory store with dev
// identity mode (caller named by the X-Agbero-Identity header).
func newTestServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, logger)

	srv := server.NewServer(
		server.Config{},
		server.Handlers{
			Health:   handler.NewHealthHandler(nil),
			Bonds:    handler.NewBondHandler(l, logger),
			Accounts: handler.NewAccountHandler(l, logger),
			Audit:    handler.NewAuditHandler(memory.NewAuditStore(), logger),
		},
		nil, nil, logger,
	)

	mux := httptest.NewServer(serverHandler(srv))
	t.Cleanup(mux.Close)
	return mux, l
}

// serverHandler extracts the http.Handler wired by NewServer for use with
// httptest without binding the configured port.
func serverHandler(s *server.Server) http.Handler {
	return s.Handler()
}

func doJSON(t *testing.T, ts *httptest.Server, identity, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agbero-Identity", identity)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestBondLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, ts, "operator", http.MethodPost, "/api/accounts/worker/deposit", map[string]any{
		"amount": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 100.0, body["balance"])

	resp, body = doJSON(t, ts, "principal", http.MethodPost, "/api/bonds", map[string]any{
		"id":                "bond-1",
		"worker":            "worker",
		"task_description":  "ship the feature",
		"collateral_amount": 100,
		"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "principal", body["principal"])

	resp, body = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-1/stake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["status"])

	resp, body = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-1/proof", map[string]any{
		"proof_uri": "https://example.com/proof",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_verification", body["status"])

	for _, v := range []string{"alice", "bob", "carol"} {
		resp, _ = doJSON(t, ts, v, http.MethodPost, "/api/bonds/bond-1/votes", map[string]any{
			"approve": true,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/bonds/bond-1/votes", nil)
	require.NoError(t, err)
	req.Header.Set("X-Agbero-Identity", "anyone")
	votesResp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer votesResp.Body.Close()
	var votes []domain.Vote
	require.NoError(t, json.NewDecoder(votesResp.Body).Decode(&votes))
	require.Len(t, votes, 3)

	resp, body = doJSON(t, ts, "anyone", http.MethodPost, "/api/bonds/bond-1/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	resp, body = doJSON(t, ts, "worker", http.MethodGet, "/api/accounts/worker/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 100.0, body["balance"])
}

func TestErrorStatusMapping(t *testing.T) {
	ts, l := newTestServer(t)
	require.NoError(t, l.Deposit(t.Context(), "worker", 100))

	// Missing bond: 404.
	resp, _ := doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/missing/stake", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Invalid amount: 400.
	resp, _ = doJSON(t, ts, "principal", http.MethodPost, "/api/bonds", map[string]any{
		"id":                "bond-1",
		"worker":            "worker",
		"collateral_amount": -1,
		"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	mustCreate := func(id string, amount float64) {
		resp, _ := doJSON(t, ts, "principal", http.MethodPost, "/api/bonds", map[string]any{
			"id":                id,
			"worker":            "worker",
			"collateral_amount": amount,
			"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	mustCreate("bond-1", 100)

	// Duplicate id: 409.
	resp, _ = doJSON(t, ts, "principal", http.MethodPost, "/api/bonds", map[string]any{
		"id":                "bond-1",
		"worker":            "worker",
		"collateral_amount": 100,
		"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Wrong caller staking: 403.
	resp, _ = doJSON(t, ts, "intruder", http.MethodPost, "/api/bonds/bond-1/stake", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Underfunded worker: 402.
	mustCreate("bond-2", 1e9)
	resp, _ = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-2/stake", nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Finalize without quorum: 409.
	resp, _ = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-1/stake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-1/proof", map[string]any{"proof_uri": "proof"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, ts, "anyone", http.MethodPost, "/api/bonds/bond-1/finalize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Worker voting on its own bond: 409.
	resp, _ = doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-1/votes", map[string]any{"approve": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMissingIdentityRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/bonds", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListBondsFilterByStatus(t *testing.T) {
	ts, l := newTestServer(t)
	require.NoError(t, l.Deposit(t.Context(), "worker", 500))

	for i := 1; i <= 3; i++ {
		resp, _ := doJSON(t, ts, "principal", http.MethodPost, "/api/bonds", map[string]any{
			"id":                fmt.Sprintf("bond-%d", i),
			"worker":            "worker",
			"collateral_amount": 50,
			"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp, _ := doJSON(t, ts, "worker", http.MethodPost, "/api/bonds/bond-2/stake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/bonds?status=active", nil)
	require.NoError(t, err)
	req.Header.Set("X-Agbero-Identity", "anyone")
	listResp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()

	var bonds []domain.Bond
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&bonds))
	require.Len(t, bonds, 1)
	assert.Equal(t, "bond-2", bonds[0].ID)
}
