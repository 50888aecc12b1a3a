package verifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicPolicyApprovesInlineProof(t *testing.T) {
	policy := NewHeuristicPolicy(
		NewFetcher(FetcherConfig{}, nil),
		HeuristicPolicyConfig{MinContentLength: 16},
	)

	d, err := policy.Evaluate(context.Background(), "deployed service to production, all checks green")
	require.NoError(t, err)
	assert.True(t, d.Approve)
	assert.Greater(t, d.Confidence, 0.5)
}

func TestHeuristicPolicyRejectsShortProof(t *testing.T) {
	policy := NewHeuristicPolicy(
		NewFetcher(FetcherConfig{}, nil),
		HeuristicPolicyConfig{MinContentLength: 32},
	)

	d, err := policy.Evaluate(context.Background(), "done")
	require.NoError(t, err)
	assert.False(t, d.Approve)
	assert.Contains(t, d.Reason, "too short")
}

func TestHeuristicPolicyRequiresKeywords(t *testing.T) {
	policy := NewHeuristicPolicy(
		NewFetcher(FetcherConfig{}, nil),
		HeuristicPolicyConfig{
			MinContentLength: 8,
			RequiredKeywords: []string{"deployed", "tested"},
		},
	)

	d, err := policy.Evaluate(context.Background(), "Deployed and Tested on staging cluster")
	require.NoError(t, err)
	assert.True(t, d.Approve, "keyword match is case-insensitive")

	d, err = policy.Evaluate(context.Background(), "deployed but nothing else to report")
	require.NoError(t, err)
	assert.False(t, d.Approve)
	assert.Contains(t, d.Reason, "tested")
}

func TestHeuristicPolicyRejectsUnreachableProof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	policy := NewHeuristicPolicy(
		NewFetcher(FetcherConfig{Timeout: time.Second}, nil),
		HeuristicPolicyConfig{MinContentLength: 8},
	)

	d, err := policy.Evaluate(context.Background(), srv.URL+"/proof")
	require.NoError(t, err, "unreachable proofs reject, they do not error")
	assert.False(t, d.Approve)
	assert.GreaterOrEqual(t, d.Confidence, 0.9)
}

func TestHeuristicPolicyConfidenceIsCapped(t *testing.T) {
	policy := NewHeuristicPolicy(
		NewFetcher(FetcherConfig{}, nil),
		HeuristicPolicyConfig{MinContentLength: 8},
	)

	d, err := policy.Evaluate(context.Background(), strings.Repeat("evidence ", 500))
	require.NoError(t, err)
	assert.True(t, d.Approve)
	assert.LessOrEqual(t, d.Confidence, 0.85)
}

func TestFetcherServesHTTPProof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("proof body from server"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: time.Second}, nil)
	content, err := f.Fetch(context.Background(), srv.URL+"/proof")
	require.NoError(t, err)
	assert.Equal(t, "proof body from server", content)
}

func TestFetcherRejectsBadCID(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, nil)
	_, err := f.Fetch(context.Background(), "ipfs://not-a-real-cid")
	assert.Error(t, err)
}

func TestFetcherTreatsBareStringAsInline(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, nil)
	content, err := f.Fetch(context.Background(), "inline proof text")
	require.NoError(t, err)
	assert.Equal(t, "inline proof text", content)
}
