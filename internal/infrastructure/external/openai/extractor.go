package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
)

// Config configures the bill extractor
type Config struct {
	APIKey   string
	Model    string
	BaseURL  string // optional, for proxies and tests
	MaxPages int    // PDF pages sent to the model
	Timeout  time.Duration
}

// BillExtractor implements port.OCRExtractor with a vision chat model.
// PDFs are rasterised with MuPDF first.
type BillExtractor struct {
	client   *openai.Client
	model    string
	maxPages int
	prompts  *PromptConfig
	logger   *zap.Logger
}

// NewBillExtractor creates a new extractor
func NewBillExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *BillExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	return &BillExtractor{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		maxPages: cfg.MaxPages,
		prompts:  prompts,
		logger:   logger,
	}
}

// billResponse tolerates amounts returned as strings
type billResponse struct {
	VendorName  string        `json:"vendorName"`
	BillNumber  string        `json:"billNumber"`
	Date        string        `json:"date"`
	Amount      entity.Amount `json:"amount"`
	Description string        `json:"description"`
}

// ExtractBill reads bill fields from an image or PDF
func (e *BillExtractor) ExtractBill(ctx context.Context, content []byte, mimeType string) (*port.ExtractedBill, error) {
	pages, err := e.toImages(content, mimeType)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to extract from")
	}

	p := e.prompts.BillExtraction
	instruction, err := renderTemplate(p.UserTemplate, map[string]interface{}{"Pages": len(pages)})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: instruction}}
	for _, page := range pages {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    page.dataURL(),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision API")
	}

	raw := resp.Choices[0].Message.Content
	var parsed billResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// fall back to a JSON object embedded in prose or a code fence
		jsonStr := extractJSON(raw)
		if jsonStr == "" {
			e.logger.Error("Failed to parse vision response", zap.Error(err), zap.String("content", raw))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	e.logger.Info("Bill fields extracted",
		zap.String("vendor", parsed.VendorName),
		zap.String("bill_number", parsed.BillNumber),
		zap.Float64("amount", parsed.Amount.Float64()),
		zap.Int("pages", len(pages)))

	return &port.ExtractedBill{
		VendorName:  strings.TrimSpace(parsed.VendorName),
		BillNumber:  strings.TrimSpace(parsed.BillNumber),
		Date:        strings.TrimSpace(parsed.Date),
		Amount:      parsed.Amount.Float64(),
		Description: strings.TrimSpace(parsed.Description),
	}, nil
}

type pageImage struct {
	mimeType string
	data     []byte
}

func (p pageImage) dataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.mimeType, base64.StdEncoding.EncodeToString(p.data))
}

func (e *BillExtractor) toImages(content []byte, mimeType string) ([]pageImage, error) {
	switch mimeType {
	case "application/pdf":
		return e.rasterisePDF(content)
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return []pageImage{{mimeType: mimeType, data: content}}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", mimeType)
	}
}

// rasterisePDF renders up to maxPages pages as JPEG
func (e *BillExtractor) rasterisePDF(content []byte) ([]pageImage, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n > e.maxPages {
		n = e.maxPages
	}

	var pages []pageImage
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			e.logger.Warn("Failed to render PDF page", zap.Int("page", i), zap.Error(err))
			continue
		}
		data, err := encodeJPEG(img)
		if err != nil {
			e.logger.Warn("Failed to encode PDF page", zap.Int("page", i), zap.Error(err))
			continue
		}
		pages = append(pages, pageImage{mimeType: "image/jpeg", data: data})
	}
	return pages, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// extractJSON returns the first balanced JSON object in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// Verify interface compliance
var _ port.OCRExtractor = (*BillExtractor)(nil)
