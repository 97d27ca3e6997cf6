// recipectl is a command-line client for the recipe assistant.
//
//	recipectl token alice --secret $RECIPE_SESSION_SECRET
//	recipectl chat "something quick with leeks"
//	recipectl recipes list --favorites
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
