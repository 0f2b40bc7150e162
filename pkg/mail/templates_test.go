package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderVerificationEmbedsLink(t *testing.T) {
	link := "https://app.example.com/auth/verify-email?token=abc123"
	msg, err := Render(TemplateVerification, "jane@example.com", TemplateData{Name: "Jane", Link: link})
	require.NoError(t, err)

	require.Equal(t, []string{"jane@example.com"}, msg.To)
	require.Equal(t, "Verify Your Email Address - Twenty Five", msg.Subject)
	require.True(t, msg.HTML)
	require.Contains(t, msg.Body, "Hello Jane,")
	require.Contains(t, msg.Body, "token=abc123")
	require.Equal(t, 2, strings.Count(msg.Body, "token=abc123"))
}

func TestRenderFallsBackToGenericGreeting(t *testing.T) {
	msg, err := Render(TemplateWelcome, "jane@example.com", TemplateData{})
	require.NoError(t, err)
	require.Equal(t, "Welcome to Twenty Five!", msg.Subject)
	require.Contains(t, msg.Body, "Hello there,")
}

func TestRenderEscapesName(t *testing.T) {
	msg, err := Render(TemplateLoginNotification, "jane@example.com", TemplateData{Name: "<script>x</script>"})
	require.NoError(t, err)
	require.Equal(t, "Login Successful ✅", msg.Subject)
	require.NotContains(t, msg.Body, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", "jane@example.com", TemplateData{})
	require.Error(t, err)
}
