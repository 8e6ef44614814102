package catalog

// Fixed conversation templates. Several phrases here are load-bearing for
// reconstruction: the classifier in internal/conversation matches them in the
// seller's own message history to recover the conversation stage after a cold
// start. Changing them requires keeping the old markers recognized.

const brandFooter = "Quedamos a tu disposicion!\n\n" +
	"*Somos Roblox_Argentina_ok*\n\n" +
	"Te dejamos nuestro contacto para que puedas agendarnos y aprovechar nuestras promos: *1138201597*"

// WelcomeMessages open every conversation, chunked under the per-message cap.
var WelcomeMessages = []string{
	"Gracias por tu compra en *Roblox Argentina*!\n\n" +
		"Has adquirido una *GIFT CARD VIRTUAL*\n" +
		"Es 100% digital - No hay envio fisico\n" +
		"El codigo se entrega INSTANTANEAMENTE por este chat\n" +
		"El envio es GRATIS por ser digital",
	"*Por favor, RESPONDE ESTE MENSAJE con UNA de estas opciones:*\n\n" +
		"*\"SI\"* - Confirmar que entendes y queres recibir tu codigo YA\n" +
		"*\"NO\"* - Si te arrepentiste y queres cancelar la compra\n" +
		"*\"HUMANO\"* - Si necesitas hablar con una persona\n\n" +
		"*Tu codigo esta listo, solo esperamos tu confirmacion.*",
}

// FinalMessages close the conversation after code delivery.
var FinalMessages = []string{
	"*Ya tenes tu Gift Card Digital!* Que la disfrutes!\n\n" +
		"Te pedimos que en cuanto recibas la tarjeta, *confirmes en ML* para que podamos seguir trabajando!",
	brandFooter,
}

// CancelMessage walks the buyer through cancelling on the platform.
const CancelMessage = "Entendemos tu decision.\n\n" +
	"*Para cancelar la compra:*\n" +
	"1. Anda a *\"Mis Compras\"* en Mercado Libre\n" +
	"2. Selecciona esta compra\n" +
	"3. Hace click en *\"Cancelar compra\"*\n\n" +
	"Una vez cancelado, Mercado Libre te reintegrara el dinero automaticamente."

// HumanMessage is the escalation handoff. "asesor humano" and "vendedor te
// respondera" are the escalation reconstruction markers.
const HumanMessage = "*Te conectamos con un asesor humano*\n\n" +
	"Un vendedor te respondera a la brevedad. Mientras tanto, por favor detallanos tu consulta."

// ReminderMessage re-prompts after unrecognized input without advancing state.
const ReminderMessage = "*No entendi tu respuesta*\n\n" +
	"Por favor, responde con UNA de estas opciones:\n\n" +
	"*\"SI\"* - Para recibir tu codigo\n" +
	"*\"NO\"* - Para cancelar la compra\n" +
	"*\"HUMANO\"* - Para hablar con una persona\n\n" +
	"Que opcion elegis?"

// StockDelayMessage is what the buyer sees when inventory is exhausted. It
// promises nothing about timing and does not advance the conversation, so the
// next buyer message retries delivery.
const StockDelayMessage = "Gracias por tu paciencia! En breve te enviamos tu gift card."

// ResendRefusalMessage ends the bounded resend path.
const ResendRefusalMessage = "Para tu seguridad no podemos reenviar mas codigos. Un asesor te ayudara en breve."

// ChangeRefusalMessage declines post-delivery product swaps.
const ChangeRefusalMessage = "Una vez enviado el codigo no podemos modificar el producto. Si necesitas ayuda con el canje estoy aca."
