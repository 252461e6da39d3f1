package lifecycle

import "github.com/pion/webrtc/v4"

type pcState = webrtc.PeerConnectionState

var transitions = map[pcState][]pcState{
	webrtc.PeerConnectionStateNew: {
		webrtc.PeerConnectionStateConnecting,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
	},
	webrtc.PeerConnectionStateConnecting: {
		webrtc.PeerConnectionStateConnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
	},
	webrtc.PeerConnectionStateConnected: {
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
	},
	webrtc.PeerConnectionStateDisconnected: {
		webrtc.PeerConnectionStateConnecting,
		webrtc.PeerConnectionStateConnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
	},
}

// CanTransition reports whether from -> to is an expected edge.
// Repeating the same state is allowed.
func CanTransition(from, to pcState) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s pcState) bool {
	return s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed
}
