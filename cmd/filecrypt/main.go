// Command filecrypt encrypts or decrypts a single file in the at-rest format
// used by the transfer server: a 16-byte IV followed by AES-256-CBC
// ciphertext with PKCS#7 padding.
//
//	filecrypt encrypt <file> [-o out]
//	filecrypt decrypt <file> -k <hex key> [-o out]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/cryptox"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: filecrypt encrypt|decrypt <file> [-o out] [-k key]")
		return 2
	}
	action := args[0]

	fs := flag.NewFlagSet("filecrypt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "output file path")
	key := fs.String("k", "", "hex encryption key (required for decrypt)")

	file, err := parseArgs(fs, args[1:])
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 2
	}

	switch action {
	case "encrypt":
		k, err := cryptox.NewKey()
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		out := *output
		if out == "" {
			out = file + common.EncryptedSuffix
		}
		if err := cryptox.EncryptFileTo(file, out, k); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, "Encrypted file saved to:", out)
		fmt.Fprintln(stdout, "Encryption key (save this for decryption):", cryptox.KeyHex(k))

	case "decrypt":
		if *key == "" {
			fmt.Fprintln(stderr, "Error: decryption requires a key (use -k)")
			return 1
		}
		k := cryptox.KeyFromString(*key)
		var out string
		if *output != "" {
			out = *output
			err = cryptox.DecryptFileTo(file, out, k)
		} else {
			out, err = cryptox.DecryptFile(file, k)
		}
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, "Decrypted file saved to:", out)

	default:
		fmt.Fprintf(stderr, "Error: unknown action %q\n", action)
		return 2
	}
	return 0
}

// parseArgs accepts flags both before and after the file argument.
func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		return "", errors.New("missing file path")
	}
	file := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return "", err
	}
	if fs.NArg() > 0 {
		return "", fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return file, nil
}
