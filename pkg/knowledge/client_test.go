package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGuidance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/guidance", r.URL.Path)

		var req GuidanceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme", req.Company)
		assert.Equal(t, "CAUTION", req.Verdict)

		json.NewEncoder(w).Encode(GuidanceResponse{
			Steps: []Step{
				{Order: 1, Title: "Verify financials", Category: "financial"},
				{Order: 2, Title: "Reference checks", Category: "team"},
			},
			NextActions: []string{"schedule partner meeting"},
		})
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	resp, err := c.GetGuidance(context.Background(), GuidanceRequest{
		Company:  "Acme",
		Industry: "Fintech",
		Stage:    "seed",
		Verdict:  "CAUTION",
	})
	require.NoError(t, err)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "Verify financials", resp.Steps[0].Title)
	assert.Equal(t, []string{"schedule partner meeting"}, resp.NextActions)
}

func TestGetGuidanceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	_, err := c.GetGuidance(context.Background(), GuidanceRequest{Company: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
