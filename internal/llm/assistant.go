package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// noReplySentinel is what the model is told to emit when it cannot help with
// a buyer message. The caller then falls back to a human escalation path.
const noReplySentinel = "NO_RESPONDER"

// ErrCannotHelp is returned by BuyerReply when the model declined to answer.
var ErrCannotHelp = errors.New("llm: assistant cannot help with this message")

// BuyerReplyMaxLen matches the marketplace chat message cap.
const BuyerReplyMaxLen = 350

// QuestionAnswerMaxLen matches the marketplace cap for listing answers.
const QuestionAnswerMaxLen = 2000

const questionSystemPrompt = `Sos un asistente de ventas de "Roblox Argentina" en MercadoLibre.
Vendes Gift Cards digitales de Steam y Roblox.

REGLAS IMPORTANTES:
- Responde SIEMPRE en español argentino (vos, tenes, podes, etc.)
- Maximo 2000 caracteres (limite de ML para respuestas a preguntas)
- Se amable, profesional y conciso
- Siempre termina con "Aguardamos tu compra. Somos Roblox Argentina."
- Las Gift Cards son DIGITALES, se entregan por el chat de ML
- La entrega es INSTANTANEA una vez acreditado el pago
- El envio es GRATIS (es digital)
- Todos los medios de pago de ML estan aceptados
- Los codigos se verifican antes de enviarse
- La compra esta protegida por ML
- NUNCA des informacion de precios si no la tenes
- NUNCA inventes informacion
- Si no sabes algo, sugeri contactar por el chat despues de la compra
- NO uses emojis
- NO uses markdown ni asteriscos
- Responde en texto plano
- Si NO PODES responder con la informacion disponible, responde SOLO: NO_RESPONDER`

// Assistant wraps a Client with the two prompts the bot uses: short chat
// replies to buyers mid-purchase and answers to public listing questions.
type Assistant struct {
	client Client
	model  string
	logger *slog.Logger
}

func NewAssistant(client Client, model string, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{client: client, model: model, logger: logger}
}

// BuyerReply generates a short conversational reply to a buyer message on a
// post-sale chat. Returns ErrCannotHelp when the model declines, so the
// caller can escalate instead of sending filler.
func (a *Assistant) BuyerReply(ctx context.Context, buyerText, productTitle string) (string, error) {
	lower := strings.ToLower(productTitle)
	redeemURL := "la pagina oficial"
	switch {
	case strings.Contains(lower, "roblox"):
		redeemURL = "www.roblox.com/redeem"
	case strings.Contains(lower, "steam"):
		redeemURL = "store.steampowered.com/account/redeemwalletcode"
	}

	systemPrompt := fmt.Sprintf(`Sos un asistente de venta de gift cards Roblox y Steam en MercadoLibre.

Tu personalidad:
- Cercano, amigable y natural
- Tono argentino (vos, tenes, podes)
- Claro y profesional, sin ser robótico

Tu función:
- Responder preguntas del cliente
- Ser breve (máximo 4 líneas)
- No enviar códigos
- No repetir mensajes
- No explicar pasos técnicos completos
- No incluir promociones ni datos de contacto
- No cerrar la conversación

Reglas:
- Si preguntan por envío → es digital e inmediato por este chat
- Si preguntan por demora → es inmediato tras acreditarse el pago
- Si preguntan si llega por mail → aclarar que se envía por este chat
- No inventar información
- No modificar instrucciones técnicas
- Para canjear: %s

Si NO PODES ayudar con la consulta específica, responde SOLO: NO_RESPONDER`, redeemURL)

	resp, err := a.client.Complete(ctx, Request{
		Model:       a.model,
		System:      []string{systemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: fmt.Sprintf("Comprador pregunta: %q\n\nResponde:", buyerText)}},
		MaxTokens:   150,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("llm: buyer reply generation: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" || strings.HasPrefix(text, noReplySentinel) {
		return "", ErrCannotHelp
	}
	if len(text) > BuyerReplyMaxLen {
		text = text[:BuyerReplyMaxLen]
	}
	return text, nil
}

// QuestionAnswer generates an answer for a public listing question. Returns
// ErrCannotHelp when the model declines; the caller must then route the
// question to a human rather than answer with filler.
func (a *Assistant) QuestionAnswer(ctx context.Context, question, itemTitle, itemDescription string) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Producto: %s\n", itemTitle)
	if itemDescription != "" {
		fmt.Fprintf(&prompt, "Descripcion: %s\n", itemDescription)
	}
	fmt.Fprintf(&prompt, "\nPregunta del comprador: %q\n\nGenera una respuesta apropiada para esta pregunta de MercadoLibre.", question)

	resp, err := a.client.Complete(ctx, Request{
		Model:     a.model,
		System:    []string{questionSystemPrompt},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt.String()}},
		MaxTokens: 500,
	})
	if err != nil {
		return "", fmt.Errorf("llm: question answer: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" || strings.Contains(text, noReplySentinel) {
		return "", ErrCannotHelp
	}
	if len(text) > QuestionAnswerMaxLen {
		text = text[:QuestionAnswerMaxLen]
	}
	return text, nil
}
