// Command hash-generator hashes credentials with the server's bcrypt settings.
// With -email it prints an INSERT statement that seeds the principal, which is
// how the first ADMIN account is created.
//
//	hash-generator -cost 12 -email root@example.com -role ADMIN 's3cret-pass'
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phrazzld/gatekeeper/internal/domain"
	"github.com/phrazzld/gatekeeper/internal/service/auth"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "hash-generator: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-generator", flag.ContinueOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	email := fs.String("email", "", "emit a seed statement for this identifier")
	role := fs.String("role", string(domain.RoleAdmin), "role of the seeded principal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	passwords := fs.Args()
	if len(passwords) == 0 {
		// One credential per line on stdin keeps secrets out of shell history.
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
				passwords = append(passwords, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	if len(passwords) == 0 {
		return errors.New("no credential given")
	}

	hasher := auth.NewBcryptHasher(*cost)
	if *email != "" {
		if len(passwords) != 1 {
			return errors.New("-email takes exactly one credential")
		}
		r, err := domain.ParseRole(*role)
		if err != nil {
			return err
		}
		stmt, err := seedStatement(hasher, *email, passwords[0], r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, stmt)
		return err
	}

	for _, password := range passwords {
		hash, err := hasher.Hash(password)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(stdout, hash); err != nil {
			return err
		}
	}
	return nil
}

// seedStatement hashes the credential and renders an idempotent insert for
// the principals table.
func seedStatement(hasher auth.PasswordHasher, email, password string, role domain.Role) (string, error) {
	hash, err := hasher.Hash(password)
	if err != nil {
		return "", err
	}
	p, err := domain.NewPrincipal(email, hash, role)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"INSERT INTO principals (id, email, credential_hash, role, enabled) VALUES ('%s', '%s', '%s', '%s', TRUE) ON CONFLICT (email) DO NOTHING;",
		p.ID, quote(p.Identifier), p.CredentialHash, p.Role,
	), nil
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
