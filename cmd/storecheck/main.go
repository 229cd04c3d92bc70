package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/moasq/storecheck/internal/commands"
)

func main() {
	err := commands.Execute(context.Background())
	if err == nil {
		return
	}
	var exit *commands.ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exit.Err)
		}
		os.Exit(exit.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
