// Command sessiond serves lock-coordinated sessions over HTTP.
//
// The storage backend is chosen with SESSION_BACKEND (file, memory, postgres,
// redis or mongo); every other setting comes from the environment or a .env
// file.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "sessiond:", err)
		os.Exit(1)
	}
}
