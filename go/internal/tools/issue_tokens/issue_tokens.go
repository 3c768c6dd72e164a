package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mcdev12/taprounds/go/internal/auth"
	"github.com/mcdev12/taprounds/go/internal/models"
)

// Account mirrors an entry of the accounts JSON file.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type issued struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

func main() {
	path := flag.String("accounts", "go/internal/assets/accounts.json", "accounts JSON file")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("AUTH_SECRET")
	if len(secret) < 32 {
		fmt.Fprintln(os.Stderr, "AUTH_SECRET must be set to at least 32 characters")
		os.Exit(1)
	}

	// 1) Load the accounts
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Issue a token per account
	authn := auth.NewAuthenticator(secret, "", nil)
	var (
		out  []issued
		errs int
	)
	for _, a := range accounts {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(a.Username))
		}
		role := models.Role(a.Role)
		if role == "" {
			role = models.RoleFromUsername(a.Username)
		}

		user := models.User{ID: id, Username: a.Username, Role: role}
		token, err := authn.IssueToken(user, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error issuing token for %s: %v\n", a.Username, err)
			errs++
			continue
		}
		out = append(out, issued{Username: a.Username, Role: string(role), Token: token})
	}

	// 3) Print tokens and summary
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Tokens issued: %d accounts, %d tokens, %d errors\n", len(accounts), len(out), errs)
}
