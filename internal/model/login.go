package model

// LoginState is the state of a QR login attempt
type LoginState string

const (
	LoginStateIdle    LoginState = "idle"
	LoginStateLoading LoginState = "loading"
	LoginStatePolling LoginState = "polling"
	LoginStateSuccess LoginState = "success"
	LoginStateError   LoginState = "error"
)

// String returns the string representation of LoginState
func (ls LoginState) String() string {
	return string(ls)
}

// CanStart reports whether a new attempt may begin from this state
func (ls LoginState) CanStart() bool {
	return ls == LoginStateIdle || ls == LoginStateError
}

// IsTerminal reports whether the attempt has ended
func (ls LoginState) IsTerminal() bool {
	return ls == LoginStateSuccess || ls == LoginStateError
}

// PollCode is the status code returned by the login poll endpoint
type PollCode int

const (
	PollCodeSuccess PollCode = 0
	PollCodeExpired PollCode = 86038
	PollCodeScanned PollCode = 86090
	PollCodePending PollCode = 86101
)

// LoginChallenge is a scannable login token and its correlation key
type LoginChallenge struct {
	URL string `json:"url"`
	Key string `json:"qrcode_key"`
}

// PollResult is one answer of the login poll endpoint
type PollResult struct {
	Code         PollCode `json:"code"`
	Message      string   `json:"message"`
	URL          string   `json:"url,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Timestamp    int64    `json:"timestamp,omitempty"`
	Credential   string   `json:"-"`
}
