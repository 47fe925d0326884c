package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/server"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"golang.org/x/term"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	if cfg.EncryptionPassword == "" {
		pw, err := promptPassword(int(os.Stdin.Fd()))
		if err != nil {
			log.Printf("%v", err)
			return
		}
		cfg.EncryptionPassword = pw
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return
	}

	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}

// promptPassword reads the encryption password without echo. It only
// prompts when stdin is a terminal.
func promptPassword(fd int) (string, error) {
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("encryption password is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Encryption password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
