// Command installations lists the installations of the GitHub App, for
// finding the installation ID to put in GITHUB_INSTALLATION_ID.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pullsage/pullsage/github"
)

func main() {
	appID, err := strconv.ParseInt(os.Getenv("GITHUB_APP_ID"), 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "GITHUB_APP_ID must be set to an integer")
		os.Exit(1)
	}

	keyPath := os.Getenv("GITHUB_PRIVATE_KEY_PATH")
	if keyPath == "" {
		fmt.Fprintln(os.Stderr, "GITHUB_PRIVATE_KEY_PATH must be set")
		os.Exit(1)
	}
	privateKey, err := os.ReadFile(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read private key: %v\n", err)
		os.Exit(1)
	}

	auth, err := github.NewAppAuth(appID, privateKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	installations, err := auth.ListInstallations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list installations: %v\n", err)
		os.Exit(1)
	}

	if len(installations) == 0 {
		fmt.Println("No installations found. Install the app on a repository first.")
		return
	}

	for _, inst := range installations {
		account := "<unknown>"
		if inst.Account != nil {
			account = inst.Account.Login
		}
		fmt.Printf("installation %d: %s\n", inst.ID, account)
	}
}
