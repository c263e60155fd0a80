package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string        // if empty, falls back to env GEMINI_API_KEY
	BaseURL     string        // default https://generativelanguage.googleapis.com/v1beta
	Model       string        // e.g., "gemini-2.5-flash-lite"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// invoicePayload mirrors the sanitized model output; absent fields stay zero.
type invoicePayload struct {
	InvoiceNumber   string           `json:"invoice_number"`
	InvoiceDate     string           `json:"invoice_date"`
	SupplierName    string           `json:"supplier_name"`
	SupplierRUC     string           `json:"supplier_ruc"`
	CustomerName    string           `json:"customer_name"`
	CustomerRUC     string           `json:"customer_ruc"`
	Items           []itemPayload    `json:"items"`
	Subtotal        *decimal.Decimal `json:"subtotal"`
	Tax             *decimal.Decimal `json:"tax"`
	Total           *decimal.Decimal `json:"total"`
	Currency        string           `json:"currency"`
	ConfidenceScore float32          `json:"confidence_score"`
}

type itemPayload struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Unit        string           `json:"unit"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TotalPrice  *decimal.Decimal `json:"total_price"`
}

// Extract invokes the model exactly once for one task and maps the response
// onto the unified invoice schema. Every failure comes back as an error, never
// a panic: the orchestrator's bulkhead depends on that.
func (c *Client) Extract(ctx context.Context, task entity.ExtractionTask) (entity.InvoiceRecord, error) {
	rid := uuid.New().String()
	ctx = common.WithRequestID(ctx, rid)
	start := time.Now()

	c.log.Info("gemini.extract.start",
		"req_id", rid,
		"job_id", common.JobIDFromContext(ctx),
		"model", c.cfg.Model,
		"filename", task.Filename,
		"sequence_id", task.SequenceID,
		"media_type", task.MediaType,
		"payload_bytes", len(task.Payload),
	)

	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{
				{"inline_data": map[string]any{
					"mime_type": baseMediaType(task.MediaType),
					"data":      base64.StdEncoding.EncodeToString(task.Payload),
				}},
				{"text": ExtractionInstruction},
			},
		}},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"temperature":      c.cfg.Temperature,
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + c.cfg.Model + ":generateContent"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("gemini.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceRecord{}, err
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.log.Error("gemini.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceRecord{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		c.log.Error("gemini.extract.no_candidates",
			"req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.InvoiceRecord{}, fmt.Errorf("no candidates in gemini response")
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	cleaned, droppedFields, err := NormalizeExtraction([]byte(sb.String()))
	if err != nil {
		c.log.Error("gemini.extract.sanitize_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceRecord{}, fmt.Errorf("sanitize failed: %w", err)
	}
	if len(droppedFields) > 0 {
		c.log.Warn("gemini.extract.sanitize_applied", "req_id", rid, "dropped", droppedFields)
	}

	if err := ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(), cleaned); err != nil {
		c.log.Error("gemini.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceRecord{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var p invoicePayload
	if err := json.Unmarshal(cleaned, &p); err != nil {
		c.log.Error("gemini.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceRecord{}, fmt.Errorf("unmarshal fields: %w", err)
	}

	rec := toRecord(p, task)
	c.log.Info("gemini.extract.ok",
		"req_id", rid,
		"sequence_id", task.SequenceID,
		"invoice_number", rec.InvoiceNumber,
		"supplier", rec.SupplierName,
		"total", totalForLog(rec.Total),
		"currency", rec.Currency,
		"confidence", rec.ConfidenceScore,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func toRecord(p invoicePayload, task entity.ExtractionTask) entity.InvoiceRecord {
	rec := entity.InvoiceRecord{
		InvoiceNumber:   p.InvoiceNumber,
		InvoiceDate:     p.InvoiceDate,
		SupplierName:    p.SupplierName,
		SupplierRUC:     p.SupplierRUC,
		CustomerName:    p.CustomerName,
		CustomerRUC:     p.CustomerRUC,
		Subtotal:        p.Subtotal,
		Tax:             p.Tax,
		Total:           p.Total,
		Currency:        p.Currency,
		ConfidenceScore: p.ConfidenceScore,
		SourceFile:      task.Filename,
		SequenceID:      task.SequenceID,
	}
	if rec.Currency == "" {
		rec.Currency = entity.DefaultCurrency
	}
	for _, it := range p.Items {
		rec.Items = append(rec.Items, entity.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		})
	}
	return rec
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini http error: %w", err)
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			c.log.Warn("gemini response body close error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func baseMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}

func totalForLog(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
