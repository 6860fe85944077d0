// derive_key.go prints the committee member id and address for a
// hex-encoded 32-byte secret file.
// Usage: go run scripts/derive_key.go <keyfile> [scheme]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingbridge/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile> [ecdsa-secp256k1|schnorr-secp256k1|ed25519]")
		os.Exit(1)
	}
	scheme := crypto.SchemeSchnorrSecp256k1
	if len(os.Args) > 2 {
		s, err := crypto.ParseScheme(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		scheme = s
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	keyHex := strings.TrimSpace(string(data))
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	signer, err := crypto.NewSigner(scheme, keyBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pub := signer.PublicKey()
	fmt.Printf("scheme=%s\n", scheme)
	fmt.Printf("pubkey=%s\n", pub.Hex())
	fmt.Printf("address=%s\n", crypto.CommitteeAddress([]crypto.PublicKey{pub}).String())
}
