// pecunia-token signs an API token for one owner, for local use and testing.
// The secret comes from JWT_SECRET so the token matches the running server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pecunia/internal/config"
	apphttp "pecunia/internal/http"
)

func main() {
	_ = godotenv.Load()

	ownerID := flag.String("owner", "", "owner id to embed as the token subject")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "usage: pecunia-token -owner <id> [-ttl 720h]")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := apphttp.IssueToken(cfg.JWTSecret, *ownerID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
