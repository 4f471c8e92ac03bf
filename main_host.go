package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"verso/board"
	"verso/hal"
	"verso/user/console"
	"verso/user/philosophers"
)

func newBoard(h hal.HAL) func() error {
	m := board.NewMachine(h, board.Config{
		Console: console.Main,
		Programs: map[string]board.Program{
			"philosophers": philosophers.Main,
		},
	})
	m.Boot()
	return m.Step
}

func main() {
	var cfg hal.HeadlessConfig
	var rawTTY bool
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Tick rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.BoolVar(&rawTTY, "serial", false, "Headless with the terminal in raw mode as the UART console.")
	flag.Parse()

	if cfg.Enabled || rawTTY {
		cfg.Enabled = true
		if rawTTY {
			serial, restore, err := hal.NewRawSerial()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer restore()
			cfg.Serial = serial
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newBoard, cfg); err != nil {
			if err == context.Canceled {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newBoard); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
