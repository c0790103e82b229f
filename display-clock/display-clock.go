// Command display-clock is a bring-up tool for a TM1637 module: it shows the host's wall clock (or
// a counter) directly through the driver, without the rest of the appliance.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrockway/segment-clock/control/logging"
	"github.com/jrockway/segment-clock/control/segment"
	"github.com/jrockway/segment-clock/control/tm1637"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	clkPin     string
	dioPin     string
	mode       string
	zone       string
	brightness uint8
	bitDelay   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "display-clock",
	Short:        "Show the time on a TM1637 display",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         displayClock,
}

func init() {
	rootCmd.Flags().StringVar(&clkPin, "clk", "P9_12", "gpio pin the display's CLK line is on")
	rootCmd.Flags().StringVar(&dioPin, "dio", "P9_15", "gpio pin the display's DIO line is on")
	rootCmd.Flags().StringVar(&mode, "mode", "time", `what to show: "time" (HH:MM of the wall clock) or "hex" (a counter, one step per second)`)
	rootCmd.Flags().StringVar(&zone, "zone", "Local", "time zone for time mode")
	rootCmd.Flags().Uint8Var(&brightness, "brightness", 7, "brightness, 0-7")
	rootCmd.Flags().DurationVar(&bitDelay, "bit-delay", tm1637.DefaultBitDelay, "pause between line changes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func displayClock(cmd *cobra.Command, args []string) error {
	log := logging.Setup("info")
	if mode != "time" && mode != "hex" {
		return fmt.Errorf("unknown mode %q", mode)
	}
	here, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Errorf("load zone: %w", err)
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph.io: %w", err)
	}
	clk, dio := gpioreg.ByName(clkPin), gpioreg.ByName(dioPin)
	if clk == nil || dio == nil {
		return fmt.Errorf("gpio pins %q and %q must both exist", clkPin, dioPin)
	}
	dev, err := tm1637.New(clk, dio, bitDelay, tm1637.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init display: %w", err)
	}
	dev.SetBrightness(brightness, true)
	if err := dev.Clear(); err != nil {
		_ = dev.Close() // The first bus error is the one reported.
		return fmt.Errorf("blank display: %w", err)
	}

	log.Info().Str("mode", mode).Msg("clock initialized")
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	var counter uint16
clock:
	for {
		now := time.Now().In(here)
		switch mode {
		case "time":
			h, m, s := now.Clock()
			var dots byte
			if s%2 == 0 {
				dots = 0x80
			}
			err = dev.ShowNumberDecEx(h*100+m, dots, true, tm1637.Digits, 0)
		case "hex":
			err = dev.ShowNumberHexEx(counter, 0, true, tm1637.Digits, 0)
			counter++
		}
		if err != nil {
			log.Error().Err(err).Msg("problem updating display")
		}

		// Wake up again right as the next second starts.
		next := time.Now().Add(time.Second).Truncate(time.Second).Sub(time.Now())
		select {
		case <-exit:
			break clock
		case <-time.After(next):
		}
	}
	log.Info().Msg("exiting")

	// Blank all digits when exiting on a signal, just so someone looking at the clock can tell
	// whether the OS crashed or we just exited the program for some reason.
	if err := dev.CloseShowing([]byte{segment.Blank, segment.Blank, segment.Blank, segment.DP}); err != nil {
		return fmt.Errorf("blank display: %w", err)
	}
	return nil
}
