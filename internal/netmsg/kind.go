package netmsg

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the application message carried inside a Data packet.
// It is always the first field of the serialized message, so dispatch can
// peek it without deserializing the rest.
type Kind uint16

const (
	KindUnknown    Kind = 0
	KindPing       Kind = 1
	KindPong       Kind = 2
	KindDisconnect Kind = 3

	KindRegisterRequest         Kind = 100
	KindRegisterResponse        Kind = 101
	KindLoginRequest            Kind = 102
	KindLoginResponse           Kind = 103
	KindTokenValidationRequest  Kind = 104
	KindTokenValidationResponse Kind = 105

	KindPlayerInput      Kind = 200
	KindPlayerInputBatch Kind = 201
	KindPlayerState      Kind = 202
	KindWorldSnapshot    Kind = 203
	KindGameAuthRequest  Kind = 204
	KindGameAuthResponse Kind = 205

	KindChatMessage Kind = 300
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "UNKNOWN"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindDisconnect:
		return "DISCONNECT"
	case KindRegisterRequest:
		return "REGISTER_REQUEST"
	case KindRegisterResponse:
		return "REGISTER_RESPONSE"
	case KindLoginRequest:
		return "LOGIN_REQUEST"
	case KindLoginResponse:
		return "LOGIN_RESPONSE"
	case KindTokenValidationRequest:
		return "TOKEN_VALIDATION_REQUEST"
	case KindTokenValidationResponse:
		return "TOKEN_VALIDATION_RESPONSE"
	case KindPlayerInput:
		return "PLAYER_INPUT"
	case KindPlayerInputBatch:
		return "PLAYER_INPUT_BATCH"
	case KindPlayerState:
		return "PLAYER_STATE"
	case KindWorldSnapshot:
		return "WORLD_SNAPSHOT"
	case KindGameAuthRequest:
		return "GAME_AUTH_REQUEST"
	case KindGameAuthResponse:
		return "GAME_AUTH_RESPONSE"
	case KindChatMessage:
		return "CHAT_MESSAGE"
	default:
		return fmt.Sprintf("KIND(%d)", uint16(k))
	}
}

// PeekKind reads the leading u16 message kind without deserializing the
// rest of the payload.
func PeekKind(data []byte) (Kind, error) {
	if len(data) < 2 {
		return KindUnknown, fmt.Errorf("peek kind: payload too short (%d bytes)", len(data))
	}
	return Kind(binary.LittleEndian.Uint16(data[:2])), nil
}
