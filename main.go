package main

import (
	"fmt"
	"os"

	_ "bootkeeper/cmd"
	"bootkeeper/cmd/root"
)

func main() {
	if err := root.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	os.Exit(0)
}
