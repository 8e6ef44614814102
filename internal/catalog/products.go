package catalog

import (
	"fmt"
	"strings"
)

// Product describes one gift-card listing family: how to recognize it from a
// listing title, which inventory bucket its codes live in, and the message
// templates the conversation engine sends for it.
type Product struct {
	Key          string
	Label        string
	SheetName    string
	Keywords     []string
	RedeemURL    string
	Instructions []string
}

// minKeywordHits is the confidence floor for title detection. A single hit
// ("roblox" alone, "10" alone) is too ambiguous across denominations.
const minKeywordHits = 2

var products = []Product{
	{
		Key:       "roblox-10",
		Label:     "Roblox 10 USD",
		SheetName: "roblox-10",
		Keywords:  []string{"roblox", "10", "usd", "dolar"},
		RedeemURL: "www.roblox.com/redeem",
		Instructions: []string{
			"*COMO CANJEAR GIFT CARD ROBLOX 10 USD?*\n\n" +
				"*Tene presente que es imprescindible recordar usuario y contrasena!*\n" +
				"IMPORTANTE: Esta tarjeta NO acredita Robux de manera directa, sino que acredita 10 USD y con ese saldo se compran los Robux.",
			"*PASO A PASO:*\n\n" +
				"1. Ingresa a *www.roblox.com/redeem* (desde un navegador, NO desde la app)\n" +
				"2. Inicia sesion en tu cuenta (si no te pide iniciar sesion es que ya existe una cuenta abierta, *asegurate que sea la tuya*)\n" +
				"3. Ingresa el codigo\n" +
				"4. Ya tenes tus 10 USD!",
			"*UNA VEZ QUE TENES LOS 10 USD CARGADOS:*\n\n" +
				"5. Anda a: *https://www.roblox.com/premium/membership*\n" +
				"6. Elegi el plan Premium de *USD 9.99*\n" +
				"7. Cuando te pide forma de pago, te va a aparecer: *\"Pagar con credito de Roblox\"*\n" +
				"8. *NO HAY QUE VOLVER A PONER EL CODIGO*",
			"9. Completa el e-mail de facturacion\n" +
				"10. Anda hasta abajo y apreta el boton de *SUSCRIBIRSE*\n\n" +
				"Estas listo para recibir tu codigo? Responde *\"LISTO\"* y te lo enviamos.",
		},
	},
	{
		Key:       "roblox-400",
		Label:     "Roblox 400 Robux",
		SheetName: "roblox-400",
		Keywords:  []string{"roblox", "400", "robux"},
		RedeemURL: "www.roblox.com/redeem",
		Instructions: []string{
			"*COMO CANJEAR GIFT CARD 400 ROBUX?*\n\n" +
				"1. Ingresa a *www.roblox.com/redeem* (desde un navegador, NO desde la app)\n" +
				"2. Inicia sesion en tu cuenta (si no te pide iniciar sesion es que ya existe una cuenta abierta, *asegurate que sea la tuya*)\n" +
				"3. Ingresa el codigo\n" +
				"4. Ya tenes tus Robux!\n\n" +
				"Estas listo para recibir tu codigo? Responde *\"LISTO\"* y te lo enviamos.",
		},
	},
	{
		Key:       "roblox-800",
		Label:     "Roblox 800 Robux",
		SheetName: "roblox-800",
		Keywords:  []string{"roblox", "800", "robux"},
		RedeemURL: "www.roblox.com/redeem",
		Instructions: []string{
			"*COMO CANJEAR GIFT CARD 800 ROBUX?*\n\n" +
				"1. Ingresa a *www.roblox.com/redeem* (desde un navegador, NO desde la app)\n" +
				"2. Inicia sesion en tu cuenta (si no te pide iniciar sesion es que ya existe una cuenta abierta, *asegurate que sea la tuya*)\n" +
				"3. Ingresa el codigo\n" +
				"4. Ya tenes tus Robux!\n\n" +
				"Estas listo para recibir tu codigo? Responde *\"LISTO\"* y te lo enviamos.",
		},
	},
	{
		Key:       "steam-5",
		Label:     "Steam 5 USD",
		SheetName: "steam-5",
		Keywords:  []string{"steam", "5", "usd", "dolar"},
		RedeemURL: "https://store.steampowered.com/account/redeemwalletcode",
		Instructions: []string{
			"*COMO CANJEAR GIFT CARD STEAM?*\n\n" +
				"1. Ingresa a *https://store.steampowered.com/account/redeemwalletcode?l=latam*\n" +
				"2. Inicia sesion en tu cuenta\n" +
				"3. Ingresa el codigo de la tarjeta\n" +
				"4. Disfruta tu saldo!\n\n" +
				"Estas listo para recibir tu codigo? Responde *\"LISTO\"* y te lo enviamos.",
		},
	},
	{
		Key:       "steam-10",
		Label:     "Steam 10 USD",
		SheetName: "steam-10",
		Keywords:  []string{"steam", "10", "usd", "dolar"},
		RedeemURL: "https://store.steampowered.com/account/redeemwalletcode",
		Instructions: []string{
			"*COMO CANJEAR GIFT CARD STEAM?*\n\n" +
				"1. Ingresa a *https://store.steampowered.com/account/redeemwalletcode?l=latam*\n" +
				"2. Inicia sesion en tu cuenta\n" +
				"3. Ingresa el codigo de la tarjeta\n" +
				"4. Disfruta tu saldo!\n\n" +
				"Estas listo para recibir tu codigo? Responde *\"LISTO\"* y te lo enviamos.",
		},
	},
}

// All returns the configured product list.
func All() []Product {
	return products
}

// Keys returns every configured product key, in catalog order.
func Keys() []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Key)
	}
	return out
}

// Detect resolves a product from a listing title using keyword scoring: the
// product with the most keyword hits wins, and fewer than minKeywordHits hits
// is treated as no match rather than a guess.
func Detect(title string) (Product, bool) {
	lower := strings.ToLower(title)
	var best Product
	bestScore := 0
	for _, p := range products {
		score := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	if bestScore < minKeywordHits {
		return Product{}, false
	}
	return best, true
}

// ByKey looks up a product by its key.
func ByKey(key string) (Product, bool) {
	for _, p := range products {
		if p.Key == key {
			return p, true
		}
	}
	return Product{}, false
}

// CodeMessage builds the delivery message for a code. The marker prefix
// ("Tu codigo:") doubles as the reconstruction anchor: its presence in a past
// seller message is how a cold process knows the code already went out.
func (p Product) CodeMessage(code, title string) string {
	label := title
	if label == "" {
		label = p.Label
	}
	return fmt.Sprintf("Tu codigo: *%s*\n\n*%s*\n\n*INSTRUCCIONES RAPIDAS:*\n%s", code, label, p.RedeemURL)
}
