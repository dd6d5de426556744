package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"lanfield/internal/game"
)

// Kind discriminates protocol messages.
type Kind uint8

const (
	// KindJoinRequest is the first message a client sends after connecting.
	KindJoinRequest Kind = iota + 1

	// KindAssignedIdentity tells a joined client its player ID.
	KindAssignedIdentity

	// KindMoveIntent is sent by a client with its desired target position.
	KindMoveIntent

	// KindStateSnapshot carries the full game state; sent on join and every tick.
	KindStateSnapshot

	// KindServerAnnounce is the discovery reply.
	KindServerAnnounce

	// KindJoinRejected is sent instead of an identity when a join is refused.
	KindJoinRejected
)

func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "join_request"
	case KindAssignedIdentity:
		return "assigned_identity"
	case KindMoveIntent:
		return "move_intent"
	case KindStateSnapshot:
		return "state_snapshot"
	case KindServerAnnounce:
		return "server_announce"
	case KindJoinRejected:
		return "join_rejected"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one of the protocol message types defined in this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// JoinRequest asks the server for a player slot.
type JoinRequest struct {
	Name string `msgpack:"n"`
}

// AssignedIdentity is the server's answer to a JoinRequest.
type AssignedIdentity struct {
	PlayerID string `msgpack:"i"`
}

// MoveIntent carries a client's desired target position.
type MoveIntent struct {
	PlayerID string  `msgpack:"i"`
	TargetX  float64 `msgpack:"x"`
	TargetY  float64 `msgpack:"y"`
}

// StateSnapshot is a full copy of the server's game state.
type StateSnapshot struct {
	State game.Snapshot `msgpack:"s"`
}

// ServerAnnounce advertises a server on the local network.
type ServerAnnounce struct {
	Name        string `msgpack:"n"`
	PlayerCount int    `msgpack:"c"`
	MaxPlayers  int    `msgpack:"m"`
	Port        int    `msgpack:"p"`
}

// JoinRejected explains why a join was refused.
type JoinRejected struct {
	Reason string `msgpack:"r"`
}

func (JoinRequest) Kind() Kind      { return KindJoinRequest }
func (AssignedIdentity) Kind() Kind { return KindAssignedIdentity }
func (MoveIntent) Kind() Kind       { return KindMoveIntent }
func (StateSnapshot) Kind() Kind    { return KindStateSnapshot }
func (ServerAnnounce) Kind() Kind   { return KindServerAnnounce }
func (JoinRejected) Kind() Kind     { return KindJoinRejected }

func (JoinRequest) isMessage()      {}
func (AssignedIdentity) isMessage() {}
func (MoveIntent) isMessage()       {}
func (StateSnapshot) isMessage()    {}
func (ServerAnnounce) isMessage()   {}
func (JoinRejected) isMessage()     {}

// envelope wraps every encoded message with its kind.
type envelope struct {
	Kind Kind               `msgpack:"k"`
	Data msgpack.RawMessage `msgpack:"d"`
}

// Encode serializes m. Every call is independent of any previous one.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("protocol: encode nil message")
	}
	body, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	out, err := msgpack.Marshal(&envelope{Kind: m.Kind(), Data: body})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s envelope: %w", m.Kind(), err)
	}
	return out, nil
}

// Decode parses a message produced by Encode. All failures are *DecodeError.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if len(env.Data) == 0 {
		return nil, &DecodeError{Kind: env.Kind, Reason: "missing body"}
	}

	switch env.Kind {
	case KindJoinRequest:
		var m JoinRequest
		return decodeBody(env, &m)
	case KindAssignedIdentity:
		var m AssignedIdentity
		return decodeBody(env, &m)
	case KindMoveIntent:
		var m MoveIntent
		return decodeBody(env, &m)
	case KindStateSnapshot:
		var m StateSnapshot
		return decodeBody(env, &m)
	case KindServerAnnounce:
		var m ServerAnnounce
		return decodeBody(env, &m)
	case KindJoinRejected:
		var m JoinRejected
		return decodeBody(env, &m)
	default:
		return nil, &DecodeError{Kind: env.Kind, Reason: "unknown message kind"}
	}
}

// decodeBody unmarshals env.Data into dst and returns the value it points to.
func decodeBody[T Message](env envelope, dst *T) (Message, error) {
	if err := msgpack.Unmarshal(env.Data, dst); err != nil {
		return nil, &DecodeError{Kind: env.Kind, Reason: "malformed body", Err: err}
	}
	return *dst, nil
}
