package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
)

func main() {
	size := flag.Int("bytes", 32, "Number of random bytes in the secret")
	flag.Parse()

	secret, err := crypto.GenerateSecret(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Signing secret: %s\n", secret)
	fmt.Printf("Secret hash:    %s\n", crypto.SecretHash(secret))
}
