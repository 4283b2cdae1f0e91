package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"go-inventory-predict/internal/config"
	"go-inventory-predict/pkg/jwt"
)

func main() {
	operator := flag.String("operator", "admin", "operator name stored in the token")
	scopes := flag.String("scopes", jwt.ScopeRestock+","+jwt.ScopeAggregatorRead, "comma separated scopes")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_TTL)")
	flag.Parse()

	// 1. Load Env (.env is read by config.Load)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 2. Collect scopes
	var granted []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted = append(granted, s)
		}
	}

	// 3. Sign
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := jwt.GenerateToken([]byte(cfg.Auth.JWTSecret), *operator, granted, lifetime)
	if err != nil {
		log.Fatalf("❌ Failed to sign token: %v", err)
	}

	log.Printf("✅ Token for %s (scopes: %s, valid %s):", *operator, strings.Join(granted, ","), lifetime)
	fmt.Println(token)
}
