package relay

import (
	"encoding/json"
	"testing"
)

func FuzzHandshakeUnmarshal(f *testing.F) {
	f.Add([]byte(`{"protocol_version":1,"network_id":"bridge-testnet-1","chains":[2,7]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"chains":null}`))

	n := New(Config{NetworkID: "bridge-testnet-1"})
	f.Fuzz(func(t *testing.T, data []byte) {
		var msg HandshakeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		n.validateHandshake(msg)
	})
}

func FuzzSyncResponseUnmarshal(f *testing.F) {
	f.Add([]byte(`{"headers":["AAEC","AwQF"]}`))
	f.Add([]byte(`{"headers":[]}`))
	f.Add([]byte(`{"headers":[null]}`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var resp SyncResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		for _, h := range resp.Headers {
			_ = len(h)
		}
	})
}
