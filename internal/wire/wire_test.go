package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDiscovery_RoundTrip(t *testing.T) {
	msg := DiscoveryMessage{
		Type:         DiscoveryAnnounce,
		PeerID:       "peer-1",
		DisplayName:  "Alice",
		DeviceName:   "alices-laptop",
		TransferPort: TransferPort,
	}
	b, err := EncodeDiscovery(msg)
	require.NoError(t, err)
	require.NotContains(t, string(b), " ", "discovery datagrams must be compact JSON with no whitespace")

	got, err := DecodeDiscovery(b)
	require.NoError(t, err)
	require.Equal(t, msg.PeerID, got.PeerID)
	require.Equal(t, msg.DisplayName, got.DisplayName)
	require.Equal(t, ProtocolTag, got.Protocol)
}

func TestDecodeDiscovery_MissingFields(t *testing.T) {
	_, err := DecodeDiscovery([]byte(`{"type":"announce"}`))
	require.Error(t, err, "missing peerId must be rejected")

	_, err = DecodeDiscovery([]byte(`{"peerId":"x"}`))
	require.Error(t, err, "missing type must be rejected")
}

func TestDecodeDiscovery_MissingProtocolTolerated(t *testing.T) {
	_, err := DecodeDiscovery([]byte(`{"type":"announce","peerId":"x"}`))
	require.NoError(t, err, "a missing protocol field is tolerated")
}

func TestDecodeDiscovery_InvalidJSON(t *testing.T) {
	_, err := DecodeDiscovery([]byte(`not json`))
	require.Error(t, err)
}

func TestHeaderFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := TransferHeader{
		Type:             TransferFileHeader,
		TransferID:       "t-1",
		FileName:         "hello.txt",
		FileSize:         3,
		TotalFiles:       1,
		CurrentFileIndex: 1,
	}
	require.NoError(t, WriteHeaderFrame(&buf, h))

	fr := NewFrameReader(&buf)
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	require.True(t, frame.IsHeader)
	require.Equal(t, h.FileName, frame.Header.FileName)
	require.Equal(t, h.FileSize, frame.Header.FileSize)
}

func TestDataFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("some file bytes")
	require.NoError(t, WriteDataFrame(&buf, payload))

	fr := NewFrameReader(&buf)
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	require.False(t, frame.IsHeader)
	require.Equal(t, payload, frame.Data)
}

func TestWriteDataFrame_RejectsOversizedChunk(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDataFrame(&buf, make([]byte, ChunkSize+1))
	require.Error(t, err)
}

func TestFrameReader_MultipleFramesInOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeaderFrame(&buf, TransferHeader{Type: TransferFileHeader, FileName: "a"}))
	require.NoError(t, WriteDataFrame(&buf, []byte("abc")))
	require.NoError(t, WriteDataFrame(&buf, []byte("def")))

	fr := NewFrameReader(&buf)
	f1, err := fr.ReadFrame()
	require.NoError(t, err)
	require.True(t, f1.IsHeader)

	f2, err := fr.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), f2.Data)

	f3, err := fr.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("def"), f3.Data)
}

func TestFrameReader_PartialReadsAreBuffered(t *testing.T) {
	// A reader that dribbles out one byte at a time still must produce a
	// complete frame (spec §4.1: "reader waits for 4 bytes, then waits
	// for length more bytes").
	var full bytes.Buffer
	require.NoError(t, WriteDataFrame(&full, []byte("xyz")))

	fr := NewFrameReader(&slowReader{data: full.Bytes()})
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), frame.Data)
}

type slowReader struct {
	data []byte
	pos  int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, strings.NewReader("").Read(p) // triggers io.EOF via the empty reader
	}
	n := copy(p[:1], r.data[r.pos:r.pos+1])
	r.pos += n
	return n, nil
}

func TestSenderID_OverloadedField(t *testing.T) {
	h := WithSenderID(TransferHeader{Type: TransferConnectionRequest, SenderName: "Bob"}, "peer-42")
	require.Equal(t, "peer-42", h.TransferID, "sender id must travel in the TransferID field (spec §4.3, §9)")
	require.Equal(t, "peer-42", h.SenderID())
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a)
}
