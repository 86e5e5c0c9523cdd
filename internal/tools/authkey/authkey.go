// Package authkey generates the Ed25519 keypair used for calendar
// access-token verification.
package authkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Run generates an access-token keypair and writes shell exports. The
// public half is what the calendar service reads at startup; the
// private half belongs to whatever mints tokens.
func Run(out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate auth key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export GATHERSPACE_AUTH_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export GATHERSPACE_AUTH_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}
	return nil
}
