package provider

import "encoding/json"

// envelope is the Cloud API message envelope. Exactly one of Text or
// Template is set, matching the "type" field.
type envelope struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textPayload     `json:"text,omitempty"`
	Template         *templatePayload `json:"template,omitempty"`
}

type textPayload struct {
	Body string `json:"body"`
}

type templatePayload struct {
	Name       string            `json:"name"`
	Language   language          `json:"language"`
	Components []json.RawMessage `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

// SendResponse is the parsed body of a successful send. The provider
// can return HTTP 200 with an error object inside the body; that case
// surfaces as *APIError, never as a SendResponse.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WAID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider-assigned ID of the first accepted
// message, or "" if the response carried none.
func (r *SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// AccountStatus is the account-status endpoint response used by the
// admin surface and the tier resolver.
type AccountStatus struct {
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
	QualityRating      string `json:"quality_rating,omitempty"`
	MessagingLimitTier string `json:"messaging_limit_tier"`
}
