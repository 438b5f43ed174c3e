package models

import (
	"net/url"
	"strings"
)

// RecipientInfo is the tagged result of parsing a raw recipient string.
// A failed parse retains the raw value and the reason instead of degrading
// to a bare nil, so callers and tests can inspect why validation failed.
type RecipientInfo struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized,omitempty"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
}

// ParseRecipient validates a recipient against the channel's expected format
// and normalizes it when valid.
func ParseRecipient(channel Channel, raw string) RecipientInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RecipientInfo{Raw: raw, Reason: "empty recipient"}
	}

	switch channel {
	case ChannelEmail:
		return parseEmail(raw)
	case ChannelSMS:
		return parsePhone(raw)
	case ChannelPush:
		return parseDeviceToken(raw)
	case ChannelWebhook:
		return parseWebhookURL(raw)
	default:
		return RecipientInfo{Raw: raw, Reason: "unknown channel"}
	}
}

func parseEmail(raw string) RecipientInfo {
	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return RecipientInfo{Raw: raw, Reason: "not an email address"}
	}
	local, domain := raw[:at], raw[at+1:]
	if strings.ContainsAny(local, " \t") || !strings.Contains(domain, ".") {
		return RecipientInfo{Raw: raw, Reason: "malformed email address"}
	}
	return RecipientInfo{
		Raw:        raw,
		Normalized: local + "@" + strings.ToLower(domain),
		Valid:      true,
	}
}

func parsePhone(raw string) RecipientInfo {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	if !strings.HasPrefix(cleaned, "+") {
		return RecipientInfo{Raw: raw, Reason: "phone number must be E.164 (+country...)"}
	}
	digits := cleaned[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return RecipientInfo{Raw: raw, Reason: "phone number must have 8-15 digits"}
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return RecipientInfo{Raw: raw, Reason: "phone number contains non-digits"}
		}
	}
	return RecipientInfo{Raw: raw, Normalized: cleaned, Valid: true}
}

func parseDeviceToken(raw string) RecipientInfo {
	if len(raw) < 32 {
		return RecipientInfo{Raw: raw, Reason: "device token too short"}
	}
	for _, r := range raw {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '-' || r == '_' || r == ':' || r == '.'
		if !ok {
			return RecipientInfo{Raw: raw, Reason: "device token contains invalid characters"}
		}
	}
	return RecipientInfo{Raw: raw, Normalized: raw, Valid: true}
}

func parseWebhookURL(raw string) RecipientInfo {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return RecipientInfo{Raw: raw, Reason: "webhook recipient must be an absolute http(s) URL"}
	}
	return RecipientInfo{Raw: raw, Normalized: u.String(), Valid: true}
}
