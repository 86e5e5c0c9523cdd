// Package main provides a one-shot utility for access-token key generation.
//
// It emits the Ed25519 keypair the calendar service uses to verify
// caller tokens.
package main

import (
	"os"

	"github.com/louisbranch/gatherspace/internal/platform/config"
	"github.com/louisbranch/gatherspace/internal/tools/authkey"
)

func main() {
	if err := authkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate auth key: %v", err)
	}
}
