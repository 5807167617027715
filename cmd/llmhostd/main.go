// Command llmhostd hosts one on-device LLM behind an HTTP API and offers
// a few local tools around it (model listing, metadata inspection, an
// interactive chat and device enumeration).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "llmhostd:", err)
		os.Exit(1)
	}
}
