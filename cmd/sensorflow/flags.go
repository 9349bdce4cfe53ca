package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of sensorflow %s:\n", name)
		fs.PrintDefaults()
	}
	return fs
}
