package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"jobboard/crypto"
)

const (
	newIdentityCommand = "new-identity"
	showAddressCommand = "show-address"
	defaultPassEnv     = "JOBBOARD_KEYSTORE_PASS"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case newIdentityCommand:
		runNewIdentity(os.Args[2:])
	case showAddressCommand:
		runShowAddress(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: jobctl <command> [flags]

Commands:
  %s   Generate a keypair and save it as an encrypted keystore file
  %s   Print the address stored in a keystore file
`, newIdentityCommand, showAddressCommand)
}

func runNewIdentity(args []string) {
	fs := flag.NewFlagSet(newIdentityCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", "identity.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	fs.Parse(args)

	if err := newIdentity(*keystorePath, *passEnv, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newIdentity(keystorePath, passEnv string, force bool) error {
	if !force {
		if _, err := os.Stat(keystorePath); err == nil {
			return fmt.Errorf("keystore %s already exists (use -force to overwrite)", keystorePath)
		}
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(keystorePath, key, passphraseFrom(passEnv)); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}

	fmt.Printf("Keystore written to %s\n", keystorePath)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
	return nil
}

func runShowAddress(args []string) {
	fs := flag.NewFlagSet(showAddressCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", "identity.keystore", "Path to the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.Parse(args)

	key, err := crypto.LoadFromKeystore(*keystorePath, passphraseFrom(*passEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key.PubKey().Address().String())
}

func passphraseFrom(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
