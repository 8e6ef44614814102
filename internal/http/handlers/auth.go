package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// authExchanger is the marketplace slice behind the OAuth bootstrap.
type authExchanger interface {
	AuthorizationURL(redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (meli.TokenGrant, error)
}

var _ authExchanger = (*meli.Client)(nil)

const authCallbackPath = "/api/auth/meli/callback"

// AuthHandler runs the one-time OAuth consent flow that produces the refresh
// token the bot is configured with. The routes are public: the marketplace
// redirects the operator's browser here and cannot attach a bearer token.
type AuthHandler struct {
	market        authExchanger
	publicBaseURL string
	feed          *activity.Log
	logger        *logging.Logger
}

// NewAuthHandler creates the handler. feed may be nil.
func NewAuthHandler(market authExchanger, publicBaseURL string, feed *activity.Log, logger *logging.Logger) *AuthHandler {
	if market == nil {
		panic("handlers: marketplace client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{
		market:        market,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		feed:          feed,
		logger:        logger,
	}
}

// Login redirects the operator to the marketplace consent page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.market.AuthorizationURL(h.callbackURL(r)), http.StatusFound)
}

// Callback exchanges the authorization code. The refresh token is returned in
// the response so the operator can persist it into the bot's environment.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	grant, err := h.market.ExchangeCode(r.Context(), code, h.callbackURL(r))
	if err != nil {
		h.logger.Error("oauth code exchange failed", "error", err)
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	h.logger.Info("marketplace authentication succeeded", "seller_id", grant.SellerID)
	if h.feed != nil {
		h.feed.Record(activity.TypeMessage, "Autenticacion exitosa con MercadoLibre", "seller "+grant.SellerID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"seller_id":     grant.SellerID,
		"refresh_token": grant.RefreshToken,
	})
}

// callbackURL prefers the configured public base URL; behind no configuration
// it falls back to the host the request arrived on.
func (h *AuthHandler) callbackURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + authCallbackPath
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + authCallbackPath
}
