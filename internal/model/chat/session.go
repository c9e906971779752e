package chat

import "strings"

// DefaultWebhookEndpoint is used until the user saves another URL.
const DefaultWebhookEndpoint = "https://n8n.eclipse-pixel-war.xyz/webhook/mira-chat"

// Session holds the device-wide identity and webhook settings.
type Session struct {
	DisplayName     string `json:"displayName"`
	WebhookEndpoint string `json:"webhookEndpoint"`
}

// HasName reports whether a display name has been captured.
func (s Session) HasName() bool {
	return strings.TrimSpace(s.DisplayName) != ""
}
