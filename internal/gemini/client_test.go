package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturio/invoice-pipeline/constants"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTask() entity.ExtractionTask {
	return entity.ExtractionTask{
		SequenceID:     7,
		Filename:       "IMG-20240201-WA0007.jpg",
		Payload:        []byte("fake image bytes"),
		MediaType:      "image/jpeg",
		Classification: constants.IMAGE,
	}
}

// geminiStub wraps model text in the generateContent response envelope.
func geminiStub(t *testing.T, modelText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.NotEmpty(t, r.Header.Get("x-goog-api-key"))

		var req struct {
			Contents []struct {
				Parts []map[string]any `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Len(t, req.Contents[0].Parts, 2)

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": modelText}},
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-2.5-flash-lite",
		Timeout: 5 * time.Second,
	}, testLogger())
}

func TestExtractMapsResponse(t *testing.T) {
	srv := geminiStub(t, `{
		"invoice_number": "F001-00012345",
		"invoice_date": "2024-02-01",
		"supplier_name": "Ferreteria El Sol S.A.C.",
		"supplier_ruc": "20123456789",
		"items": [{"description": "Cemento", "quantity": 10, "unit_price": 28.90, "total_price": 289.00, "unit": "bolsa"}],
		"subtotal": 289.00,
		"tax": 52.02,
		"total": 341.02,
		"currency": "PEN",
		"confidence_score": 0.93
	}`)
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, "F001-00012345", rec.InvoiceNumber)
	assert.Equal(t, "2024-02-01", rec.InvoiceDate)
	assert.Equal(t, "20123456789", rec.SupplierRUC)
	require.NotNil(t, rec.Total)
	assert.Equal(t, "341.02", rec.Total.String())
	assert.Equal(t, "PEN", rec.Currency)
	assert.InDelta(t, 0.93, rec.ConfidenceScore, 1e-6)

	// Task identity flows through untouched.
	assert.Equal(t, 7, rec.SequenceID)
	assert.Equal(t, "IMG-20240201-WA0007.jpg", rec.SourceFile)

	require.Len(t, rec.Items, 1)
	assert.Equal(t, "Cemento", rec.Items[0].Description)
	require.NotNil(t, rec.Items[0].UnitPrice)
	assert.Equal(t, "28.90", rec.Items[0].UnitPrice.String())
}

func TestExtractLowConfidenceConveyedVerbatim(t *testing.T) {
	srv := geminiStub(t, `{"supplier_name": "borroso", "confidence_score": 0.12}`)
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.NoError(t, err)
	// Low confidence is the caller's problem, not grounds for an error.
	assert.InDelta(t, 0.12, rec.ConfidenceScore, 1e-6)
	assert.Equal(t, "borroso", rec.SupplierName)
}

func TestExtractDefaultsCurrency(t *testing.T) {
	srv := geminiStub(t, `{"confidence_score": 0.4}`)
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultCurrency, rec.Currency)
}

func TestExtractFencedOutputAccepted(t *testing.T) {
	srv := geminiStub(t, "```json\n{\"invoice_number\": \"B002-1\", \"confidence_score\": 0.6}\n```")
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, "B002-1", rec.InvoiceNumber)
}

func TestExtractMalformedModelOutput(t *testing.T) {
	srv := geminiStub(t, "I am sorry, I cannot read this document.")
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sanitize")
}

func TestExtractNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestExtractUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), testTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExtractHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Extract(ctx, testTask())
	require.Error(t, err)
}
