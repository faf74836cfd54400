// Package wire defines the two on-the-wire formats Witra nodes exchange:
// discovery datagrams (UDP, JSON) and session frames (TCP, length-prefixed).
//
// - Application: this package defines the discovery envelope (announce/
//   goodbye) and the transfer header (connection/file/folder/cancel).
// - Transport: UDP for discovery (net.ListenConfig.ListenPacket), TCP for transfer sessions
//   (net.Listen/net.Dial). Neither layer is reliable on its own for the
//   control header's JSON payload; frame integrity comes from the length
//   prefix (TCP) or the single datagram (UDP).
// - Network/link: no assumptions beyond IPv4 and a single broadcast domain.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Protocol parameters, used directly by the other packages.
const (
	// DiscoveryPort is the UDP discovery port (spec §6).
	DiscoveryPort = 45678
	// TransferPort is the TCP transfer port (spec §6).
	TransferPort = 45679
	// ChunkSize is the largest data payload allowed per frame (spec §4.1).
	ChunkSize = 65536
	// ProtocolTag identifies the protocol family in the discovery datagram.
	ProtocolTag = "witra-v1"
)

// Discovery message types.
const (
	DiscoveryAnnounce = "announce"
	DiscoveryGoodbye  = "goodbye"
)

// Transfer header types (spec §6). transfer_ack/ping/pong are reserved:
// defined here for wire-format compatibility, never emitted.
const (
	TransferConnectionRequest = "connection_request"
	TransferConnectionAccept  = "connection_accept"
	TransferConnectionReject  = "connection_reject"
	TransferFileHeader        = "file_header"
	TransferFileData          = "file_data"
	TransferFileComplete      = "file_complete"
	TransferFolderHeader      = "folder_header"
	TransferCancel            = "transfer_cancel"
	TransferAck               = "transfer_ack"
	TransferPing              = "ping"
	TransferPong              = "pong"
)

// frameKind identifies the type byte of a session frame (spec §4.1).
type frameKind byte

const (
	frameKindHeader frameKind = 0
	frameKindData   frameKind = 1
)

// NewID generates an opaque 128-bit identifier (peer, session, or transfer),
// equivalent to the original's QUuid::createUuid().
func NewID() string {
	return uuid.New().String()
}

// DiscoveryMessage is the compact JSON envelope exchanged over UDP
// (spec §3, §6).
type DiscoveryMessage struct {
	Type         string `json:"type"`
	PeerID       string `json:"peerId"`
	DisplayName  string `json:"displayName"`
	DeviceName   string `json:"deviceName"`
	TransferPort int    `json:"transferPort"`
	Protocol     string `json:"protocol"`
}

// EncodeDiscovery serializes the message with no extra whitespace.
func EncodeDiscovery(msg DiscoveryMessage) ([]byte, error) {
	msg.Protocol = ProtocolTag
	return json.Marshal(msg)
}

// DecodeDiscovery deserializes and validates a discovery datagram. Unknown
// types are not an error here; the caller decides whether to drop them
// silently (spec §4.1: "unknown types are dropped silently").
func DecodeDiscovery(b []byte) (DiscoveryMessage, error) {
	var msg DiscoveryMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return DiscoveryMessage{}, fmt.Errorf("wire: invalid discovery datagram: %w", err)
	}
	if msg.Type == "" || msg.PeerID == "" {
		return DiscoveryMessage{}, errors.New("wire: discovery datagram missing type or peerId")
	}
	return msg, nil
}

// TransferHeader is the JSON payload of a header frame (spec §3, §6).
//
// TransferID is deliberately the only field the connection_request message
// uses to carry the sender's id: it is serialized inside the wire message's
// TransferID field, an intentional overlap inherited from the original
// protocol that must be preserved byte for byte (spec §4.3, §9).
type TransferHeader struct {
	Type             string `json:"type"`
	TransferID       string `json:"transferId"`
	FileName         string `json:"fileName"`
	RelativePath     string `json:"relativePath"`
	FileSize         int64  `json:"fileSize"`
	TotalFiles       int64  `json:"totalFiles"`
	CurrentFileIndex int64  `json:"currentFileIndex"`
	SenderName       string `json:"senderName"`
}

// SenderID reads the sender's id off a connection_request message, where it
// travels overlapped in the TransferID field (spec §4.3).
func (h TransferHeader) SenderID() string { return h.TransferID }

// WithSenderID returns a connection_request header with the sender's id
// encoded in the TransferID field.
func WithSenderID(h TransferHeader, senderID string) TransferHeader {
	h.TransferID = senderID
	return h
}

// EncodeHeader serializes a TransferHeader to compact JSON.
func EncodeHeader(h TransferHeader) ([]byte, error) {
	return json.Marshal(h)
}

// DecodeHeader deserializes a TransferHeader.
func DecodeHeader(b []byte) (TransferHeader, error) {
	var h TransferHeader
	if err := json.Unmarshal(b, &h); err != nil {
		return TransferHeader{}, fmt.Errorf("wire: invalid transfer header: %w", err)
	}
	return h, nil
}

// WriteHeaderFrame writes a header frame (kind=0) to w (spec §4.1).
func WriteHeaderFrame(w io.Writer, h TransferHeader) error {
	payload, err := EncodeHeader(h)
	if err != nil {
		return err
	}
	return writeFrame(w, frameKindHeader, payload)
}

// WriteDataFrame writes a data frame (kind=1) to w. The caller guarantees
// len(payload) <= ChunkSize (spec §4.1: "senders must not exceed it").
func WriteDataFrame(w io.Writer, payload []byte) error {
	if len(payload) > ChunkSize {
		return fmt.Errorf("wire: data frame of %d bytes exceeds chunk size %d", len(payload), ChunkSize)
	}
	return writeFrame(w, frameKindData, payload)
}

func writeFrame(w io.Writer, kind frameKind, payload []byte) error {
	length := uint32(len(payload) + 1)
	buf := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(kind)
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

// Frame is an already-decoded session frame.
type Frame struct {
	IsHeader bool
	Header   TransferHeader // valid only if IsHeader
	Data     []byte         // valid only if !IsHeader
}

// FrameReader reads length-prefixed frames off a reliable byte stream,
// keeping its own receive buffer (spec §3: the "receive framing buffer" is
// owned exclusively by the session).
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader creates a frame reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ErrOversizedFrame is returned when the declared size exceeds the limit the
// receiver tolerates (spec §4.1: "any size <= 2^31-1").
var ErrOversizedFrame = errors.New("wire: frame length exceeds protocol maximum")

const maxFrameLength = 1<<31 - 1

// ReadFrame blocks until a complete frame is available, or until the
// underlying stream returns an error (including io.EOF).
func (fr *FrameReader) ReadFrame() (Frame, error) {
	lenBuf, err := fr.readExactly(4)
	if err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return Frame{}, errors.New("wire: zero-length frame")
	}
	if length > maxFrameLength {
		return Frame{}, ErrOversizedFrame
	}
	body, err := fr.readExactly(int(length))
	if err != nil {
		return Frame{}, err
	}
	kind := frameKind(body[0])
	payload := body[1:]
	switch kind {
	case frameKindHeader:
		h, err := DecodeHeader(payload)
		if err != nil {
			return Frame{}, err
		}
		return Frame{IsHeader: true, Header: h}, nil
	case frameKindData:
		return Frame{IsHeader: false, Data: payload}, nil
	default:
		return Frame{}, fmt.Errorf("wire: unknown frame kind %d", kind)
	}
}

func (fr *FrameReader) readExactly(n int) ([]byte, error) {
	for len(fr.buf) < n {
		chunk := make([]byte, 4096)
		read, err := fr.r.Read(chunk)
		if read > 0 {
			fr.buf = append(fr.buf, chunk[:read]...)
		}
		if err != nil {
			if len(fr.buf) >= n {
				break
			}
			return nil, err
		}
	}
	out := fr.buf[:n]
	fr.buf = fr.buf[n:]
	return out, nil
}
