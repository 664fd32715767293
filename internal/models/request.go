package models

// CreatePaymentRequest is the body of POST /api/v1/payments.
type CreatePaymentRequest struct {
	Amount          string          `json:"amount" binding:"required"`
	Currency        string          `json:"currency" binding:"required,len=3"`
	Method          PaymentMethod   `json:"method" binding:"required"`
	TransactionType TransactionType `json:"transaction_type" binding:"required,oneof=AUTHORIZATION CHARGE"`
	Reference       string          `json:"reference" binding:"max=255"`
	LanguageCode    string          `json:"language_code" binding:"omitempty,len=2"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

type PaymentResponse struct {
	Payment     *Payment `json:"payment"`
	NextAction  string   `json:"next_action,omitempty"`
	RedirectURL string   `json:"redirect_url,omitempty"`
}

// NewPaymentResponse points the client at the redirect when the gateway asked
// for one and the payment is still waiting on it.
func NewPaymentResponse(p *Payment) PaymentResponse {
	resp := PaymentResponse{Payment: p}
	if url := p.CustomFields[CustomFieldRedirectURL]; url != "" {
		if _, pending := p.FirstNonTerminal(); pending {
			resp.NextAction = "redirect_to_url"
			resp.RedirectURL = url
		}
	}
	return resp
}
