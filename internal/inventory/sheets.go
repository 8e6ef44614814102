package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// SheetsSource talks to the Google Apps Script endpoint that fronts the
// operator's spreadsheet. One tab per product, one code per row. Kept for
// operators who manage stock in Sheets instead of Postgres; the web app
// performs the claim server-side so the same guarantees hold.
type SheetsSource struct {
	client *resty.Client
	logger *logging.Logger
}

// NewSheetsSource creates a source backed by the Apps Script web app.
func NewSheetsSource(scriptURL string, logger *logging.Logger) (*SheetsSource, error) {
	if scriptURL == "" {
		return nil, fmt.Errorf("inventory: sheets script url is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := resty.New().
		SetBaseURL(scriptURL).
		SetTimeout(20 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &SheetsSource{client: client, logger: logger}, nil
}

type sheetsResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Row   int    `json:"row"`
	Error string `json:"error"`
}

func (s *SheetsSource) post(ctx context.Context, payload map[string]any) (*sheetsResponse, error) {
	var out sheetsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("inventory: sheets request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inventory: sheets returned status %s: %s", resp.Status(), resp.String())
	}
	return &out, nil
}

// sheetName maps a product key to its spreadsheet tab.
func sheetName(productKey string) string {
	if p, ok := catalog.ByKey(productKey); ok {
		return p.SheetName
	}
	return productKey
}

// Draw claims the next unused code from the product's tab.
func (s *SheetsSource) Draw(ctx context.Context, productKey string) (*Reservation, error) {
	out, err := s.post(ctx, map[string]any{
		"action": "getCode",
		"sheet":  sheetName(productKey),
	})
	if err != nil {
		return nil, err
	}
	if !out.OK || out.Code == "" {
		if out.Error != "" && out.Error != "no_stock" {
			return nil, fmt.Errorf("inventory: sheets getCode: %s", out.Error)
		}
		return nil, ErrOutOfStock
	}
	return &Reservation{
		ID:         fmt.Sprintf("%s:%d", sheetName(productKey), out.Row),
		ProductKey: productKey,
		Code:       out.Code,
	}, nil
}

// MarkDelivered records the order against the code's row.
func (s *SheetsSource) MarkDelivered(ctx context.Context, res *Reservation, orderID string) error {
	out, err := s.post(ctx, map[string]any{
		"action": "markDelivered",
		"sheet":  sheetName(res.ProductKey),
		"code":   res.Code,
		"order":  orderID,
	})
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("inventory: sheets markDelivered: %s", out.Error)
	}
	return nil
}

// Release clears the reservation so the code can be claimed again.
func (s *SheetsSource) Release(ctx context.Context, res *Reservation) error {
	out, err := s.post(ctx, map[string]any{
		"action": "release",
		"sheet":  sheetName(res.ProductKey),
		"code":   res.Code,
	})
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("inventory: sheets release: %s", out.Error)
	}
	return nil
}

// Verify checks connectivity to the web app and reports the visible tabs.
func (s *SheetsSource) Verify(ctx context.Context) ([]string, error) {
	var out struct {
		OK     bool     `json:"ok"`
		Sheets []string `json:"sheets"`
		Error  string   `json:"error"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"action": "verify"}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("inventory: sheets request failed: %w", err)
	}
	if resp.IsError() || !out.OK {
		return nil, fmt.Errorf("inventory: sheets verify: status %s %s", resp.Status(), out.Error)
	}
	return out.Sheets, nil
}

// Counts fetches the available count per tab.
func (s *SheetsSource) Counts(ctx context.Context) (map[string]int, error) {
	var out struct {
		OK     bool           `json:"ok"`
		Counts map[string]int `json:"counts"`
		Error  string         `json:"error"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"action": "inventory"}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("inventory: sheets request failed: %w", err)
	}
	if resp.IsError() || !out.OK {
		return nil, fmt.Errorf("inventory: sheets inventory: status %s %s", resp.Status(), out.Error)
	}

	// Tabs are named per product; translate back to catalog keys.
	counts := make(map[string]int, len(out.Counts))
	for _, p := range catalog.All() {
		if n, ok := out.Counts[p.SheetName]; ok {
			counts[p.Key] = n
		}
	}
	return counts, nil
}

var _ Source = (*SheetsSource)(nil)
