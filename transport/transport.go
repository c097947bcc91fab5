// Package transport declares the contracts the pipeline talks to a
// radio link through: receiving raw AOS transfer frames on the
// downlink, and transmitting TC transfer frames on the uplink.
// Grounded on gaia-ccsds-c2a/src/ccsds/{aos,tc}/sync_and_channel_coding.rs.
package transport

import (
	"context"

	"github.com/groundstation/tmtc-broker/ccsds/tc"
)

// AOSReceiver yields raw AOS transfer frame bytes as they arrive from
// the radio link, in order, one call per frame.
type AOSReceiver interface {
	Receive(ctx context.Context) ([]byte, error)
}

// TCTransmitter sends one TC transfer frame's data field downstream
// to the radio link, tagged with the frame's spacecraft/virtual
// channel identifiers, type, and (for Type-AD frames) sequence
// number.
type TCTransmitter interface {
	Transmit(ctx context.Context, scid uint16, vcid uint8, frameType tc.FrameType, sequenceNumber uint8, dataField []byte) error
}
