package zncodec

import (
	"bytes"
	"fmt"

	"github.com/zeebo/bencode"
)

// TrackerAnnounceResponse is the bencoded body an HTTP tracker returns.
// Shaped after the majestrate-chihaya tracker's bencode dictionary.
type TrackerAnnounceResponse struct {
	FailureReason string `bencode:"failure reason,omitempty"`
	Interval      int    `bencode:"interval,omitempty"`
	Peers         []byte `bencode:"peers,omitempty"` // compact 6-byte IPv4 records
}

// DecodeTrackerAnnounceResponse bencode-decodes an HTTP tracker announce body.
func DecodeTrackerAnnounceResponse(body []byte) (TrackerAnnounceResponse, error) {
	var resp TrackerAnnounceResponse
	if err := bencode.NewDecoder(bytes.NewReader(body)).Decode(&resp); err != nil {
		return TrackerAnnounceResponse{}, fmt.Errorf("zncodec: bencode decode: %w", err)
	}
	return resp, nil
}

// EncodeBencode is a thin wrapper kept for symmetry with DecodeTrackerAnnounceResponse,
// used by tests to build fixture tracker responses.
func EncodeBencode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("zncodec: bencode encode: %w", err)
	}
	return buf.Bytes(), nil
}
