// Command rvfront drives the branch prediction unit of the instruction-fetch
// front end against a synthetic trace, for smoke-testing the front end
// without a full execution pipeline behind it. The register renamer is not
// exercised.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvfront/timing/bpu"
	"github.com/sarchlab/rvfront/timing/config"
	"github.com/sarchlab/rvfront/timing/driveloop"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON front-end configuration file")
	verbose := flag.Bool("v", false, "print the number of cycles driven and trace steps")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rvfront:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	b := bpu.New(cfg.BPUConfig())
	steps := demoTrace()
	loop := driveloop.New(b, steps)

	cycles := loop.Run()
	if *verbose {
		fmt.Printf("rvfront: drove %d cycles over %d trace steps\n", cycles, len(steps))
	}

	fmt.Print(loop.Report())
	os.Exit(0)
}
