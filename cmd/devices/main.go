package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gen2brain/aunit"
)

func main() {
	var (
		dirStr  string
		synth   bool
		verbose bool
	)

	flag.StringVar(&dirStr, "direction", "out", "The direction to enumerate (out, in, duplex)")
	flag.BoolVar(&synth, "synth", false, "Use the synthetic driver instead of the native one")
	flag.BoolVar(&verbose, "verbose", false, "Print the supported formats of every device")
	flag.Parse()

	var dir aunit.Direction
	switch dirStr {
	case "out":
		dir = aunit.DirectionOut
	case "in":
		dir = aunit.DirectionIn
	case "duplex":
		dir = aunit.DirectionDuplex
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q\n", dirStr)
		os.Exit(1)
	}

	var drv aunit.Driver
	if synth {
		drv = aunit.NewSynthDriver()
	} else {
		var err error
		drv, err = nativeDriver()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	registry := aunit.NewDirectory(drv)

	devs, err := registry.Devices(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(devs) == 0 {
		fmt.Printf("No %s devices found via %s\n", dir, drv.Name())

		return
	}

	for _, dev := range devs {
		def := ""
		if dev.IsDefault {
			def = " (default)"
		}

		fmt.Printf("%s: %s [%s]%s\n", dev.ID, dev.Name, dev.Direction, def)

		if verbose {
			for _, f := range dev.SupportedFormats {
				fmt.Printf("  %s\n", f)
			}
		}
	}
}
