package netmsg

// AuthResult is the outcome code of an auth-service endpoint.
type AuthResult byte

const (
	AuthSuccess            AuthResult = 0
	AuthInvalidCredentials AuthResult = 1
	AuthRateLimited        AuthResult = 2
	AuthUserExists         AuthResult = 3
	AuthWeakPassword       AuthResult = 4
	AuthBanned             AuthResult = 5
	AuthInternalError      AuthResult = 99
)

func (r AuthResult) String() string {
	switch r {
	case AuthSuccess:
		return "SUCCESS"
	case AuthInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case AuthRateLimited:
		return "RATE_LIMITED"
	case AuthUserExists:
		return "USER_EXISTS"
	case AuthWeakPassword:
		return "WEAK_PASSWORD"
	case AuthBanned:
		return "BANNED"
	case AuthInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Confirm  string
}

// Encode writes the message into buf. Returns bytes written.
func (m RegisterRequest) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindRegisterRequest))
	w.String(m.Username)
	w.String(m.Email)
	w.String(m.Password)
	w.String(m.Confirm)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *RegisterRequest) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindRegisterRequest)
	m.Username = r.String()
	m.Email = r.String()
	m.Password = r.String()
	m.Confirm = r.String()
	return r.Err()
}

// RegisterResponse reports the outcome of a RegisterRequest.
type RegisterResponse struct {
	Result    AuthResult
	AccountID string
	Username  string
	Message   string
}

// Encode writes the message into buf. Returns bytes written.
func (m RegisterResponse) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindRegisterResponse))
	w.U8(byte(m.Result))
	w.String(m.AccountID)
	w.String(m.Username)
	w.String(m.Message)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *RegisterResponse) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindRegisterResponse)
	m.Result = AuthResult(r.U8())
	m.AccountID = r.String()
	m.Username = r.String()
	m.Message = r.String()
	return r.Err()
}

// LoginRequest authenticates by username or email. An identifier containing
// '@' takes the email path. The client IP is taken from the transport peer,
// never from the message.
type LoginRequest struct {
	Identifier string
	Password   string
}

// Encode writes the message into buf. Returns bytes written.
func (m LoginRequest) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindLoginRequest))
	w.String(m.Identifier)
	w.String(m.Password)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *LoginRequest) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindLoginRequest)
	m.Identifier = r.String()
	m.Password = r.String()
	return r.Err()
}

// LoginResponse carries the signed session token on success, or the retry
// delay when the per-IP limiter tripped.
type LoginResponse struct {
	Result     AuthResult
	Token      string
	UserID     string
	Username   string
	RetryAfter uint32 // seconds, set when Result == AuthRateLimited
	Message    string
}

// Encode writes the message into buf. Returns bytes written.
func (m LoginResponse) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindLoginResponse))
	w.U8(byte(m.Result))
	w.String(m.Token)
	w.String(m.UserID)
	w.String(m.Username)
	w.U32(m.RetryAfter)
	w.String(m.Message)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *LoginResponse) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindLoginResponse)
	m.Result = AuthResult(r.U8())
	m.Token = r.String()
	m.UserID = r.String()
	m.Username = r.String()
	m.RetryAfter = r.U32()
	m.Message = r.String()
	return r.Err()
}

// TokenValidationRequest asks the auth service to verify a token.
type TokenValidationRequest struct {
	Token string
}

// Encode writes the message into buf. Returns bytes written.
func (m TokenValidationRequest) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindTokenValidationRequest))
	w.String(m.Token)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *TokenValidationRequest) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindTokenValidationRequest)
	m.Token = r.String()
	return r.Err()
}

// TokenValidationResponse reports the verified claims or an error message.
type TokenValidationResponse struct {
	Valid     bool
	UserID    string
	Username  string
	ExpiresAt int64 // unix seconds
	Message   string
}

// Encode writes the message into buf. Returns bytes written.
func (m TokenValidationResponse) Encode(buf []byte) (int, error) {
	w := NewWriter(buf)
	w.U16(uint16(KindTokenValidationResponse))
	var valid byte
	if m.Valid {
		valid = 1
	}
	w.U8(valid)
	w.String(m.UserID)
	w.String(m.Username)
	w.I64(m.ExpiresAt)
	w.String(m.Message)
	return w.Len(), w.Err()
}

// Decode parses the message from data.
func (m *TokenValidationResponse) Decode(data []byte) error {
	r := NewReader(data)
	r.expectKind(KindTokenValidationResponse)
	m.Valid = r.U8() != 0
	m.UserID = r.String()
	m.Username = r.String()
	m.ExpiresAt = r.I64()
	m.Message = r.String()
	return r.Err()
}
