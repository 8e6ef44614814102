package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robloxar/giftcard-bot/internal/catalog"
)

// sheetsStub fakes the Apps Script web app: one JSON action per POST.
func sheetsStub(t *testing.T, handler func(action string, payload map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		action, _ := payload["action"].(string)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(action, payload)))
	}))
}

func TestSheetsSourceRequiresURL(t *testing.T) {
	_, err := NewSheetsSource("", nil)
	require.Error(t, err)
}

func TestSheetsDraw(t *testing.T) {
	srv := sheetsStub(t, func(action string, payload map[string]any) any {
		require.Equal(t, "getCode", action)
		return map[string]any{"ok": true, "code": "SHEET-0001", "row": 4}
	})
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	res, err := src.Draw(context.Background(), "roblox-800")
	require.NoError(t, err)
	assert.Equal(t, "SHEET-0001", res.Code)
	assert.Equal(t, "roblox-800", res.ProductKey)
	assert.NotEmpty(t, res.ID)
}

func TestSheetsDrawOutOfStock(t *testing.T) {
	srv := sheetsStub(t, func(string, map[string]any) any {
		return map[string]any{"ok": false, "error": "no_stock"}
	})
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	_, err = src.Draw(context.Background(), "roblox-800")
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestSheetsMarkDelivered(t *testing.T) {
	var gotOrder string
	srv := sheetsStub(t, func(action string, payload map[string]any) any {
		require.Equal(t, "markDelivered", action)
		gotOrder, _ = payload["order"].(string)
		return map[string]any{"ok": true}
	})
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	res := &Reservation{ID: "Roblox800:4", ProductKey: "roblox-800", Code: "SHEET-0001"}
	require.NoError(t, src.MarkDelivered(context.Background(), res, "2000001"))
	assert.Equal(t, "2000001", gotOrder)
}

func TestSheetsCounts(t *testing.T) {
	srv := sheetsStub(t, func(action string, payload map[string]any) any {
		require.Equal(t, "inventory", action)
		counts := map[string]int{}
		for _, p := range catalog.All() {
			counts[p.SheetName] = 3
		}
		return map[string]any{"ok": true, "counts": counts}
	})
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	counts, err := src.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts["roblox-800"])
}

func TestSheetsVerify(t *testing.T) {
	srv := sheetsStub(t, func(action string, payload map[string]any) any {
		require.Equal(t, "verify", action)
		return map[string]any{"ok": true, "sheets": []string{"Roblox800", "Steam5"}}
	})
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	tabs, err := src.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Roblox800", "Steam5"}, tabs)
}

func TestSheetsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src, err := NewSheetsSource(srv.URL, nil)
	require.NoError(t, err)

	_, err = src.Draw(context.Background(), "roblox-800")
	require.Error(t, err)
}
