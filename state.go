package x402

// ClientState tracks how far an ExactClient has progressed through a payment.
type ClientState int

const (
	ClientIdle ClientState = iota
	ClientInitialized
	ClientRequirementsDecoded
	ClientOptionSelected
	ClientAuthorizationSigned
	ClientSignatureEmitted
)

func (s ClientState) String() string {
	switch s {
	case ClientIdle:
		return "idle"
	case ClientInitialized:
		return "initialized"
	case ClientRequirementsDecoded:
		return "requirements_decoded"
	case ClientOptionSelected:
		return "option_selected"
	case ClientAuthorizationSigned:
		return "authorization_signed"
	case ClientSignatureEmitted:
		return "signature_emitted"
	}
	return "unknown"
}

// ServerState tracks the last step an ExactServer completed.
type ServerState int

const (
	ServerIdle ServerState = iota
	ServerInitialized
	ServerCatalogPrepared
	ServerRequiredPayloadBuilt
	ServerSignatureDecoded
	ServerValidated
	ServerSimulated
	ServerSettled
	ServerResponseEmitted
)

func (s ServerState) String() string {
	switch s {
	case ServerIdle:
		return "idle"
	case ServerInitialized:
		return "initialized"
	case ServerCatalogPrepared:
		return "catalog_prepared"
	case ServerRequiredPayloadBuilt:
		return "required_payload_built"
	case ServerSignatureDecoded:
		return "signature_decoded"
	case ServerValidated:
		return "validated"
	case ServerSimulated:
		return "simulated"
	case ServerSettled:
		return "settled"
	case ServerResponseEmitted:
		return "response_emitted"
	}
	return "unknown"
}
