package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var statusKnown int64

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service and fleet status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		if statusKnown > 0 {
			params.Set("known", strconv.FormatInt(statusKnown, 10))
		}
		body, err := call("/dcc/fleet/status", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <id> <speed>",
	Short: "Move a locomotive, consist or raw DCC address",
	Long: `Move a locomotive, consist or raw DCC address.

A positive speed moves forward, a negative speed in reverse, zero is a
normal stop. A numeric ID addresses the track directly; a symbolic ID
resolves through consists first, then vehicles.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid speed %q", args[1])
		}
		params := url.Values{"id": {args[0]}, "speed": {args[1]}}
		body, err := call("/dcc/fleet/move", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var stopUrgent bool

var stopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Stop one train, or everything on the track",
	Long: `Stop one train, or, with no ID, broadcast a stop to every
vehicle on the track. --urgent cuts power immediately instead of
following the decoder's deceleration curve.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		if len(args) == 1 {
			params.Set("id", args[0])
		}
		if stopUrgent {
			params.Set("urgent", "1")
		}
		body, err := call("/dcc/fleet/stop", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <id> <device> <on|off>",
	Short: "Switch an onboard device (lights, sound, ...)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[2] != "on" && args[2] != "off" {
			return fmt.Errorf("state must be on or off, got %q", args[2])
		}
		params := url.Values{
			"id":     {args[0]},
			"device": {args[1]},
			"state":  {args[2]},
		}
		body, err := call("/dcc/fleet/set", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var accessoryCmd = &cobra.Command{
	Use:   "accessory <address> <device> <on|off>",
	Short: "Switch an accessory decoder device (turnout, signal)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid accessory address %q", args[0])
		}
		if args[2] != "on" && args[2] != "off" {
			return fmt.Errorf("state must be on or off, got %q", args[2])
		}
		params := url.Values{
			"adr":    {args[0]},
			"device": {args[1]},
			"state":  {args[2]},
		}
		body, err := call("/dcc/accessory", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var gpioCmd = &cobra.Command{
	Use:   "gpio <pin-a> [pin-b]",
	Short: "Reassign the generator output pins",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid pin %q", args[0])
		}
		params := url.Values{"a": {args[0]}}
		if len(args) == 2 {
			if _, err := strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid pin %q", args[1])
			}
			params.Set("b", args[1])
		}
		body, err := call("/dcc/gpio", params)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

func init() {
	statusCmd.Flags().Int64Var(&statusKnown, "known", 0, "Last known change counter (enables 304 answers)")
	stopCmd.Flags().BoolVarP(&stopUrgent, "urgent", "u", false, "Emergency stop: cut power immediately")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(accessoryCmd)
	rootCmd.AddCommand(gpioCmd)
}
