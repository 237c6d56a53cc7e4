// Command gensecret prints a random hex key suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultKeyBytes = 32

func main() {
	n := pflag.IntP("bytes", "b", defaultKeyBytes, "Key length in bytes")
	pflag.Parse()

	if *n < 16 {
		fmt.Fprintln(os.Stderr, "key must be at least 16 bytes")
		os.Exit(2)
	}

	b := make([]byte, *n)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
