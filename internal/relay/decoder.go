package relay

import "github.com/zitemo/livecards/pkg/types"

// FrameDecoder decodes one length-prefixed protobuf frame read off the
// websocket into a normalized ChatEvent. Not every frame carries an event
// (heartbeat acks, for instance) — ok is false for those. The concrete
// Douyin wire format (message envelope, per-type payload schemas) is
// opaque to this package, same as CredentialProvider: implementations are
// free to wrap whatever protobuf-generated types the wire protocol needs.
type FrameDecoder interface {
	Decode(frame []byte) (event types.ChatEvent, ok bool, err error)

	// NeedsAck reports whether frame carries the server's ACK-request bit,
	// obligating a reply within the relay's ack timeout.
	NeedsAck(frame []byte) bool

	// BuildAck constructs the wire payload to send back in reply to frame
	// when NeedsAck(frame) is true.
	BuildAck(frame []byte) []byte
}
