package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind of outbound message. Template sends consume monthly and 24h-tier
// quota; text sends are gated only by the conversation window.
type Kind string

const (
	KindText     Kind = "text"
	KindTemplate Kind = "template"
)

// Recipients accepts either a single string or a list of strings in the
// request JSON, normalizing to a slice.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = Recipients{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("'to' must be a string or a list of strings")
	}
	*r = Recipients(many)
	return nil
}

// SendRequest is the dispatch request body.
type SendRequest struct {
	To         Recipients        `json:"to" validate:"required,min=1,dive,required"`
	Type       Kind              `json:"type" validate:"required,oneof=text template"`
	Text       string            `json:"text" validate:"required_if=Type text"`
	Name       string            `json:"name" validate:"required_if=Type template"`
	Language   string            `json:"language"`
	Components []json.RawMessage `json:"components"`
}

// Result is one recipient's fate. Status carries the provider's HTTP
// status verbatim for transport failures, 400 for application-level
// provider errors, 403 for window denials, 500 for unexpected errors,
// and 200 for clean successes.
type Result struct {
	Recipient string `json:"recipient"`
	Status    int    `json:"status"`
	Response  any    `json:"response"`
}

// Outcome enumerates every recipient's fate explicitly; no recipient is
// silently dropped.
type Outcome struct {
	Results []Result `json:"results"`
	Errors  []Result `json:"errors"`
}

// HTTPStatus maps the outcome to 200 when every attempt succeeded and
// 207 (multi-status) when any recipient failed.
func (o *Outcome) HTTPStatus() int {
	if len(o.Errors) > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}
