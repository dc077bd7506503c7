// Command slatoken mints a service token for callers of the internal SLA API,
// signed with the same AUTH_* settings the api process reads.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/config"
)

func main() {
	service := flag.String("service", "", "calling service name recorded as the audit actor")
	scopes := flag.String("scopes", auth.ScopeRead+","+auth.ScopeWrite, "comma separated scopes")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to AUTH_TOKEN_TTL_MINUTES")
	flag.Parse()

	if *service == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lifetime := cfg.Auth.TokenTTL()
	if *ttl > 0 {
		lifetime = *ttl
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime)
	token, expiresAt, err := tokens.GenerateToken(*service, splitScopes(*scopes)...)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
}

func splitScopes(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
