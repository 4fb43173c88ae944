package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/superfly/frameRender/auth"
)

// gentoken prints a token for calling the render server named by its argument.
func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s server-id", os.Args[0])
	}
	serverId := os.Args[1]

	signer, err := auth.NewSigner(os.Getenv("FRAMERENDER_PRIVATE"))
	if err != nil {
		log.Fatalf("auth.NewSigner: %v", err)
	}

	fmt.Printf("%s: %s\n", auth.Header, signer(time.Now(), serverId))
}
