package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigreer/rootdev/internal/getroot"
	"github.com/sigreer/rootdev/internal/platform"
)

var probeCmd = &cobra.Command{
	Use:   "probe <path>",
	Short: "Report the device behind a path",
	Long: `Probe a path (or, with --device, a device) and print one of:

  device       the OS devices holding the filesystem at path
  drive        the bootloader device names for those devices
  abstraction  the storage abstraction of each device (lvm, luks, raid, geli)
  relpath      path relative to the root of its filesystem

Examples:
  rootdev probe /boot/grub
  rootdev probe --target drive /boot
  rootdev probe --device --target drive /dev/mapper/vg-root
  rootdev probe --target relpath /boot/grub`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	probeCmd.Flags().StringP("target", "t", "device", "what to print: device, drive, abstraction, relpath")
	probeCmd.Flags().BoolP("device", "d", false, "treat the argument as a device instead of a path")
	probeCmd.Flags().StringP("output", "o", "text", "Output format: text, json")
}

type probeResult struct {
	Path    string   `json:"path,omitempty"`
	Target  string   `json:"target"`
	Results []string `json:"results"`
}

func runProbe(cmd *cobra.Command, args []string) {
	arg := args[0]
	target, _ := cmd.Flags().GetString("target")
	isDevice, _ := cmd.Flags().GetBool("device")
	outputFmt, _ := cmd.Flags().GetString("output")

	e := mustEnv()
	results, err := probe(e.res, arg, target, isDevice)
	if err != nil {
		fatal("%v", err)
	}

	switch outputFmt {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(probeResult{Path: arg, Target: target, Results: results}); err != nil {
			fatal("encoding output: %v", err)
		}
	default:
		fmt.Println(strings.Join(results, " "))
	}
}

func probe(res *getroot.Resolver, arg, target string, isDevice bool) ([]string, error) {
	if target == "relpath" {
		if isDevice {
			return nil, fmt.Errorf("relpath needs a path, not a device")
		}
		rel, err := res.MakeSystemPathRelativeToItsRoot(arg)
		if err != nil {
			return nil, err
		}
		return []string{rel}, nil
	}

	devices := []string{arg}
	if !isDevice {
		found, err := res.GuessRootDevices(arg)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("cannot find a device for %s (is /dev mounted?)", arg)
		}
		devices = found
	}

	switch target {
	case "device":
		return devices, nil

	case "drive":
		out := make([]string, 0, len(devices))
		for _, d := range devices {
			name, err := res.GetGrubDev(d)
			if err != nil {
				return nil, err
			}
			if name == "" {
				return nil, fmt.Errorf("cannot find a bootloader drive for %s", d)
			}
			out = append(out, "("+name+")")
		}
		return out, nil

	case "abstraction":
		var out []string
		for _, d := range devices {
			if err := res.PullDevice(d); err != nil {
				return nil, err
			}
			if ab := res.Abstraction(d); ab != platform.None {
				out = append(out, ab.String())
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown target %q", target)
}
