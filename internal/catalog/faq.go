package catalog

import "strings"

// FAQEntry is a keyword-matched canned answer for pre-sale questions.
type FAQEntry struct {
	Keywords []string
	Answer   string
}

var faqEntries = []FAQEntry{
	{
		Keywords: []string{"envía", "envia", "gift card", "como llega", "cómo llega"},
		Answer:   "Gracias por tu consulta. La Gift Card se envia de forma 100% digital a traves del chat de Mercado Libre una vez acreditado el pago. La entrega es instantanea y no se realiza envio fisico. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"cuánto tarda", "cuanto tarda", "entrega", "demora"},
		Answer:   "Gracias por tu consulta. La entrega es instantanea una vez que Mercado Libre acredita el pago. Recibiras el codigo por el chat oficial de la compra. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"envío gratis", "envio gratis", "gratis"},
		Answer:   "Gracias por tu consulta. Si, el envio es totalmente gratuito ya que la entrega es digital e instantanea por el chat de Mercado Libre. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"tarjeta física", "tarjeta fisica", "envío físico", "envio fisico", "domicilio"},
		Answer:   "Gracias por tu consulta. No, esta publicacion corresponde a una Gift Card digital con entrega instantanea. No se envia tarjeta fisica por correo. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"medios de pago", "pagar", "como pago", "cómo pago"},
		Answer:   "Gracias por tu consulta. Aceptamos todos los medios de pago habilitados por Mercado Libre: tarjeta de credito, debito, transferencia y saldo en cuenta. La entrega es instantanea. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"cuotas"},
		Answer:   "Gracias por tu consulta. Si, si Mercado Libre habilita cuotas con tu tarjeta podras abonar en cuotas sin problema. La entrega es instantanea al acreditarse el pago. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"comprobante"},
		Answer:   "Gracias por tu consulta. No es necesario enviar comprobante. Una vez que Mercado Libre acredita el pago, enviamos el codigo de manera instantanea por el chat. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"seguro comprar", "es seguro", "confiable"},
		Answer:   "Gracias por tu consulta. Si, la compra es 100% segura y esta protegida por Mercado Libre. El codigo se envia de forma instantanea unicamente por el chat oficial de la plataforma. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"código no funciona", "codigo no funciona", "no funciona", "no me sirve"},
		Answer:   "Gracias por tu consulta. Todos los codigos se verifican antes de enviarse. En caso de algun inconveniente, podes escribirnos por el chat para ayudarte de inmediato. Aguardamos tu compra. Somos Roblox Argentina.",
	},
	{
		Keywords: []string{"stock", "disponible", "hay", "tenes", "tienen"},
		Answer:   "Gracias por tu consulta. Si, tenemos stock disponible. La entrega es digital e instantanea por el chat de Mercado Libre una vez acreditado el pago. Aguardamos tu compra. Somos Roblox Argentina.",
	},
}

// FindFAQAnswer scores every FAQ entry by keyword hits against the question
// text and returns the best answer. Entries that also match words from the
// listing title get a small boost so product-specific phrasing wins ties.
// Returns false when nothing matches: the caller falls through to the LLM tier.
func FindFAQAnswer(question, itemTitle string) (string, bool) {
	lower := strings.ToLower(question)
	titleLower := strings.ToLower(itemTitle)

	var best string
	bestScore := 0
	for _, entry := range faqEntries {
		score := 0
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				score++
				if titleLower != "" && strings.Contains(titleLower, kw) {
					score++
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = entry.Answer
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return best, true
}
