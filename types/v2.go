package types

import "encoding/json"

const (
	// X402Version is the protocol version carried by every v2 payload.
	X402Version = 2
	// SchemeExact is the only payment scheme this module implements.
	SchemeExact = "exact"
	// AssetTransferMethodEIP3009 is the default transfer method advertised in requirements.
	AssetTransferMethodEIP3009 = "transferWithAuthorization"
)

// RequirementExtra carries the EIP-712 domain of the asset and its transfer method.
type RequirementExtra struct {
	Name                string `json:"name"`
	Version             string `json:"version"`
	AssetTransferMethod string `json:"assetTransferMethod,omitempty"`
}

// PaymentRequirements is a single "accepts" entry of a PaymentRequired response.
type PaymentRequirements struct {
	Scheme            string            `json:"scheme"`
	Network           Network           `json:"network"`
	Amount            string            `json:"amount"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Extra             *RequirementExtra `json:"extra,omitempty"`
}

// Accepted trims a requirement down to the fields echoed back by the client.
func (r PaymentRequirements) Accepted() AcceptedRequirement {
	return AcceptedRequirement{
		Scheme:  r.Scheme,
		Network: r.Network,
		Amount:  r.Amount,
		Asset:   r.Asset,
		PayTo:   r.PayTo,
	}
}

// PaymentRequired is the PAYMENT-REQUIRED payload sent by the server.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Resource    string                `json:"resource"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// AcceptedRequirement is the requirement the client chose, as echoed in PaymentPayload.
type AcceptedRequirement struct {
	Scheme  string  `json:"scheme"`
	Network Network `json:"network"`
	Amount  string  `json:"amount"`
	Asset   string  `json:"asset"`
	PayTo   string  `json:"payTo"`
}

// Authorization is an EIP-3009 TransferWithAuthorization message with integer
// fields serialized as decimal strings.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmPayload is the scheme-specific part of a PaymentPayload.
type ExactEvmPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the PAYMENT-SIGNATURE payload sent by the client.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Resource    string              `json:"resource"`
	Accepted    AcceptedRequirement `json:"accepted"`
	Payload     ExactEvmPayload     `json:"payload"`
}

// SettlementResponse is the PAYMENT-RESPONSE payload. Success carries
// Transaction, Network and Payer; failure carries ErrorReason.
type SettlementResponse struct {
	Success     bool    `json:"success"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	ErrorReason string  `json:"errorReason,omitempty"`
}

// NewSuccessSettlementResponse builds the success variant.
func NewSuccessSettlementResponse(transaction string, network Network, payer string) SettlementResponse {
	return SettlementResponse{
		Success:     true,
		Transaction: transaction,
		Network:     network,
		Payer:       payer,
	}
}

// NewFailureSettlementResponse builds the failure variant.
func NewFailureSettlementResponse(errorReason string) SettlementResponse {
	return SettlementResponse{Success: false, ErrorReason: errorReason}
}

// ToPaymentPayload unmarshals bytes to a payment payload
func ToPaymentPayload(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToPaymentRequired unmarshals bytes to a payment required response
func ToPaymentRequired(data []byte) (*PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, err
	}
	return &required, nil
}

// ToSettlementResponse unmarshals bytes to a settlement response
func ToSettlementResponse(data []byte) (*SettlementResponse, error) {
	var response SettlementResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return &response, nil
}
