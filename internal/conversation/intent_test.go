package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReady(t *testing.T) {
	ready := []string{
		"listo",
		"LISTO",
		"Listo!",
		"si",
		"sí dale",
		"ok",
		"ya",
		"enviame el codigo",
		"cual es el codigo?",
		"dame el code por favor",
	}
	for _, text := range ready {
		assert.True(t, IsReady(text), "%q should read as ready", text)
	}

	notReady := []string{
		"hola",
		"buenas tardes",
		"gracias",
		"casino", // "si" must not match inside a word
	}
	for _, text := range notReady {
		assert.False(t, IsReady(text), "%q should not read as ready", text)
	}
}

func TestIsResend(t *testing.T) {
	assert.True(t, IsResend("no me llego el codigo"))
	assert.True(t, IsResend("no recibi nada"))
	assert.True(t, IsResend("el codigo no funciona"))
	assert.True(t, IsResend("donde esta mi codigo"))
	assert.False(t, IsResend("gracias, lo recibi"))
}

func TestIsCancel(t *testing.T) {
	assert.True(t, IsCancel("quiero cancelar"))
	assert.True(t, IsCancel("necesito un reembolso"))
	assert.True(t, IsCancel("me arrepenti de la compra"))
	assert.True(t, IsCancel("no"), "bare no is a cancel per the welcome prompt")
	assert.True(t, IsCancel("NO"))
	assert.False(t, IsCancel("no me llego"), "complaints are not cancellations")
	assert.False(t, IsCancel("listo"))
}

func TestIsHuman(t *testing.T) {
	assert.True(t, IsHuman("quiero hablar con un humano"))
	assert.True(t, IsHuman("necesito un asesor"))
	assert.True(t, IsHuman("tengo un problema"))
	assert.False(t, IsHuman("listo"))
	assert.False(t, IsHuman("ayudame"), "word-bound ayuda only")
}

func TestIsProductChange(t *testing.T) {
	assert.True(t, IsProductChange("puedo cambiar por otro?"))
	assert.True(t, IsProductChange("quiero otra gift card"))
	assert.False(t, IsProductChange("listo"))
}

func TestMessageHashNormalizes(t *testing.T) {
	assert.Equal(t, MessageHash("Listo"), MessageHash("  listo  "))
	assert.Equal(t, MessageHash("LISTO"), MessageHash("listo"))
	assert.NotEqual(t, MessageHash("listo"), MessageHash("listo!"))
	assert.Len(t, MessageHash("x"), 32)
}
