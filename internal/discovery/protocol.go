// Package discovery finds the desktop peer by UDP broadcast and tracks the
// session it assigns.
package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Wire protocol constants.
const (
	// ProtocolVersion must match exactly between client and peer.
	ProtocolVersion = 1
	// DiscoveryPort is where the peer listens for connect requests.
	DiscoveryPort = 34567
	// ListenPort is where the client listens for connect responses.
	ListenPort = 34568
	// ConnectRequestPause is the minimum spacing between two broadcasts.
	ConnectRequestPause = time.Second
	// MaxMalformedResponses consecutive bad responses drop an established session.
	MaxMalformedResponses = 3
	// maxMessageSize bounds a single discovery datagram.
	maxMessageSize = 64 * 1024
)

// ErrProtocol is matched by every *ProtocolError.
var ErrProtocol = errors.New("discovery protocol error")

// ProtocolError is a connect response that cannot establish a session.
// Remote is set when the peer itself reported the failure, in which case
// Message is the peer's text unchanged.
type ProtocolError struct {
	Message string
	Remote  bool
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Remote {
		return "peer rejected connect request: " + e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("malformed connect response: %s: %v", e.Message, e.Cause)
	}
	return "malformed connect response: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// Is makes every ProtocolError match ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// EventText is the text surfaced to observers in a failure event.
func (e *ProtocolError) EventText() string {
	if e.Remote {
		return e.Message
	}
	return e.Error()
}

// ConnectRequest is broadcast by the client to find a peer.
type ConnectRequest struct {
	ProtocolVersion      int    `json:"protocolVersion"`
	ClientName           string `json:"clientName"`
	ClientID             string `json:"clientId"`
	MicrophoneSampleRate int    `json:"microphoneSampleRate"`
}

// ConnectResponse is the peer's answer, sent to the requester's listen port.
type ConnectResponse struct {
	ClientName           string `json:"clientName"`
	ClientID             string `json:"clientId,omitempty"`
	MicrophonePort       int    `json:"microphonePort"`
	MicrophoneSampleRate int    `json:"microphoneSampleRate,omitempty"`
	ErrorMessage         string `json:"errorMessage,omitempty"`
	HTTPServerPort       int    `json:"httpServerPort,omitempty"`

	// Peer is the address the response came from. Not part of the payload.
	Peer netip.AddrPort `json:"-"`
}

// Validate checks that the response can establish a session for clientID.
// A response without clientId is accepted for any client.
func (r ConnectResponse) Validate(clientID string) error {
	switch {
	case r.ErrorMessage != "":
		return &ProtocolError{Message: r.ErrorMessage, Remote: true}
	case r.ClientName == "":
		return &ProtocolError{Message: "missing clientName"}
	case r.MicrophonePort <= 0 || r.MicrophonePort > 65535:
		return &ProtocolError{Message: fmt.Sprintf("invalid microphonePort %d", r.MicrophonePort)}
	case r.ClientID != "" && clientID != "" && r.ClientID != clientID:
		return &ProtocolError{Message: fmt.Sprintf("response addressed to client %s", r.ClientID)}
	}
	return nil
}

// Validate checks a request on the peer side. A version mismatch is a hard rejection.
func (r ConnectRequest) Validate() error {
	switch {
	case r.ProtocolVersion != ProtocolVersion:
		return &ProtocolError{Message: fmt.Sprintf("protocol version mismatch: client %d, server %d", r.ProtocolVersion, ProtocolVersion)}
	case r.ClientName == "":
		return &ProtocolError{Message: "missing clientName"}
	case r.MicrophoneSampleRate <= 0:
		return &ProtocolError{Message: fmt.Sprintf("invalid microphoneSampleRate %d", r.MicrophoneSampleRate)}
	}
	return nil
}

// EncodeRequest serializes a request.
func EncodeRequest(r ConnectRequest) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses a request datagram.
func DecodeRequest(data []byte) (ConnectRequest, error) {
	var r ConnectRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return ConnectRequest{}, &ProtocolError{Message: "undecodable connect request", Cause: err}
	}
	return r, nil
}

// EncodeResponse serializes a response.
func EncodeResponse(r ConnectResponse) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse parses a response datagram. Field names match
// case-insensitively, so peers using PascalCase names decode as well.
func DecodeResponse(data []byte) (ConnectResponse, error) {
	var r ConnectResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return ConnectResponse{}, &ProtocolError{Message: "undecodable connect response", Cause: err}
	}
	return r, nil
}
