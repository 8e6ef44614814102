package conversation

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Buyer intent vocabularies. Short affirmatives use word boundaries so "si"
// inside another word does not count; longer phrases match as substrings the
// way buyers actually type them.
var (
	readyRe = regexp.MustCompile(`(?i)\b(listo|ready|si|sí|ok|okk|confirmado|dale|ya)\b|enviame|envia|el codigo|el código|cual es|qual es|dame|darme|por ?favor|entreg|send me|gimme|code|activa`)

	resendRe = regexp.MustCompile(`(?i)no me lleg|no me recibi|no recibi|no funciona|resend|didn'?t receive|lost code|no tengo|no recibe|no veo|donde esta|dónde está`)

	changeRe = regexp.MustCompile(`(?i)cambiar|change|\botro\b|\botra\b|different|en vez de|en lugar de|prefer`)

	cancelRe = regexp.MustCompile(`(?i)cancelar|cancela|devolucion|devolución|reembolso|arrepent|no lo quiero|anular`)

	humanRe = regexp.MustCompile(`(?i)humano|persona real|asesor|\bayuda\b|problema|hablar con alguien|operador`)
)

// IsReady reports whether the buyer is confirming they want the code.
func IsReady(text string) bool { return readyRe.MatchString(text) }

// IsResend reports whether the buyer claims the code never arrived.
func IsResend(text string) bool { return resendRe.MatchString(text) }

// IsProductChange reports whether the buyer wants a different product.
func IsProductChange(text string) bool { return changeRe.MatchString(text) }

// IsCancel reports whether the buyer wants to back out of the purchase. The
// welcome prompt offers a bare "NO", so that exact reply counts too.
func IsCancel(text string) bool {
	if strings.EqualFold(strings.TrimSpace(text), "no") {
		return true
	}
	return cancelRe.MatchString(text)
}

// IsHuman reports whether the buyer is asking for a person.
func IsHuman(text string) bool { return humanRe.MatchString(text) }

// MessageHash digests a buyer text for the duplicate-delivery guard. Case
// and surrounding whitespace are ignored so webhook redeliveries of the same
// message always collide.
func MessageHash(text string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
