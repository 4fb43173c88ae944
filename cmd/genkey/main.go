package main

import (
	"fmt"
	"os"

	"github.com/superfly/frameRender/auth"
)

// genkey prints a keypair in the form the serve and render commands read from the environment.
func main() {
	pub, priv, err := auth.GenKeypair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("FRAMERENDER_PUBLIC=%s\n", pub)
	fmt.Printf("FRAMERENDER_PRIVATE=%s\n", priv)
}
