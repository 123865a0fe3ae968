// Command pinhash prints an Argon2id pin_hash for a role PIN.
//
// The PIN is read from the first line of stdin so it never appears in
// shell history:
//
//	echo 1234 | pinhash
//
// Paste the output into the role's pin_hash field in config.yaml.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
)

// minPINLength matches the shortest PIN the kiosk keypad accepts.
const minPINLength = 4

var (
	errNoPIN      = errors.New("pinhash: no PIN on stdin")
	errInvalidPIN = errors.New("pinhash: PIN must be at least 4 digits")
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run reads one PIN from in and writes its hash to out.
func run(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading PIN: %w", err)
		}
		return errNoPIN
	}

	pin := strings.TrimSpace(scanner.Text())
	if pin == "" {
		return errNoPIN
	}
	if !validPIN(pin) {
		return errInvalidPIN
	}

	hash, err := auth.HashPIN(pin)
	if err != nil {
		return fmt.Errorf("hashing PIN: %w", err)
	}

	if _, err := fmt.Fprintln(out, hash); err != nil {
		return fmt.Errorf("writing hash: %w", err)
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < minPINLength {
		return false
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
