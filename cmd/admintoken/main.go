// Command admintoken mints an admin bearer token for the /admin endpoints
// using the same ADMIN_JWT_SECRET the server validates with.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ironclad/internal/admintoken"
	"ironclad/internal/platform/config"
)

func main() {
	subject := flag.String("subject", "", "operator identity recorded as the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		fail(err)
	}
	if cfg.Admin.JWTSecret == "" {
		fail(fmt.Errorf("ADMIN_JWT_SECRET is not set"))
	}
	lifetime := cfg.Admin.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := admintoken.New(cfg.Admin.JWTSecret, cfg.Admin.Issuer).Issue(*subject, lifetime)
	if err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "admin token for %s expires %s\n", *subject, time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "admintoken:", err)
	os.Exit(1)
}
