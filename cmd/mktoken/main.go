// Command mktoken mints a development identity token for the relay.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mitmlab.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		secret  = flag.String("secret", os.Getenv("MITMLAB_JWT_SECRET"), "HS256 signing secret")
		issuer  = flag.String("issuer", os.Getenv("MITMLAB_JWT_ISSUER"), "Token issuer (optional)")
		subject = flag.String("sub", "", "User id placed in the sub claim")
		ttl     = flag.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")
	)
	flag.Parse()

	if *subject == "" {
		log.Fatal("usage: mktoken -sub <user-id> [-ttl 24h]")
	}
	tok, err := auth.GenerateToken(*secret, *subject, *issuer, *ttl)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Println(tok)
}
