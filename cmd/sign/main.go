package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/frankmark94/channel-play-pen/internal/crypto"
)

func main() {
	channelID := flag.String("channel", "", "Channel ID the token is issued for")
	secret := flag.String("secret", "", "Shared signing secret")
	post := flag.String("post", "", "Webhook URL to POST the body to (prints the header only if empty)")
	bodyFile := flag.String("body", "", "File containing request body (or use stdin)")
	flag.Parse()

	if *channelID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -channel <channel-id> -secret <secret> [-post <url>] [-body <file>]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -body not specified and -post is set")
		os.Exit(1)
	}

	token, err := crypto.NewTokenCodec().Sign(*channelID, *secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	if *post == "" {
		fmt.Printf("Authorization: Bearer %s\n", token)
		return
	}

	// Read body
	var body []byte
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *post, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid URL: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s\n%s\n", resp.Status, reply)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
