package main

import (
	"os"

	"github.com/goplus/kiln/cmd/kiln/internal"
)

func main() {
	os.Exit(internal.Execute())
}
