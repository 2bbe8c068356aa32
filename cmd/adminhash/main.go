// Command adminhash prints the bcrypt hash to put in ADMIN_PASSWORD_HASH.
//
//	go run ./cmd/adminhash            # reads the password from stdin
//	echo -n 's3cret' | go run ./cmd/adminhash
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sakif/graduation-photo/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "admin password: ")
	password, err := readPassword(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminhash: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.NewPasswordService().Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminhash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// readPassword takes the first line of r without its line ending. Input
// without a trailing newline (echo -n) is accepted as is.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if line == "" {
		return "", errors.New("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
