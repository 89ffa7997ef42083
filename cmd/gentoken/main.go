package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/handler"
)

func main() {
	userID := flag.Int64("user", 0, "User ID (required, positive)")
	role := flag.String("role", "CUSTOMER", "Role: CUSTOMER or ADMIN")
	secret := flag.String("secret", "dev-secret-key", "JWT secret key")
	expiry := flag.Int("expiry", 3600, "Token expiry in seconds")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user must be a positive integer")
		os.Exit(2)
	}
	r, ok := domain.ParseRole(*role)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	identity := domain.Identity{UserID: *userID, Role: r}
	token, expiresAt, err := handler.SignToken(*secret, identity, time.Duration(*expiry)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Generated JWT Token ===")
	fmt.Printf("User ID:    %d\n", identity.UserID)
	fmt.Printf("Role:       %s\n", identity.Role)
	fmt.Printf("Expires At: %s\n", expiresAt.UTC().Format(time.RFC3339))
	fmt.Println("")
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/v1/accounts\n", token)
}
