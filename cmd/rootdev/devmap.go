package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/rootdev/internal/config"
	"github.com/sigreer/rootdev/internal/db"
	"github.com/sigreer/rootdev/internal/registry"
)

var devmapCmd = &cobra.Command{
	Use:   "devmap",
	Short: "Manage the drive map",
	Long: `Manage the mapping between OS disks and bootloader drive names.

The map can be generated from disk discovery, written in device.map format,
and saved to or loaded from the database. With discovery set to "database"
or "auto" the saved map seeds every run, so drive names stay stable between
runs.`,
}

var devmapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mappings stored in the database",
	Run:   runDevmapList,
}

var devmapGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Number the system's disks and print a device.map",
	Run:   runDevmapGenerate,
}

var devmapSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store the current map (device.map or discovery) in the database",
	Run:   runDevmapSave,
}

var devmapLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Print the database's map in device.map format",
	Run:   runDevmapLoad,
}

var devmapEventsCmd = &cobra.Command{
	Use:   "events [drive]",
	Short: "Show the history of drive mappings",
	Args:  cobra.MaximumNArgs(1),
	Run:   runDevmapEvents,
}

func init() {
	devmapCmd.AddCommand(devmapListCmd)
	devmapCmd.AddCommand(devmapGenerateCmd)
	devmapCmd.AddCommand(devmapSaveCmd)
	devmapCmd.AddCommand(devmapLoadCmd)
	devmapCmd.AddCommand(devmapEventsCmd)

	devmapListCmd.Flags().StringP("output", "o", "", "Output format: table, devicemap (default table on a terminal)")
	devmapGenerateCmd.Flags().StringP("write", "w", "", "Write to this file instead of stdout")
	devmapGenerateCmd.Flags().Bool("save", false, "Also save the generated map to the database")
	devmapLoadCmd.Flags().StringP("write", "w", "", "Write to this file instead of stdout")
	devmapEventsCmd.Flags().Int("limit", 50, "Maximum number of events to show")
}

func openDB(e *env) *db.DB {
	database, err := db.New(e.cfg.Database)
	if err != nil {
		fatal("opening database: %v", err)
	}
	return database
}

func saveRegistry(e *env) {
	database := openDB(e)
	defer database.Close()
	if err := database.SaveRegistry(e.reg, e.source, e.sizes); err != nil {
		fatal("saving device map: %v", err)
	}
	e.log.Infof("saved %d mappings to %s", len(e.reg.Entries()), database.Path())
}

// writeMap writes entries to path, or stdout when path is empty.
func writeMap(path string, entries []registry.Entry) (err error) {
	if path == "" {
		return registry.WriteDeviceMap(os.Stdout, entries)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return registry.WriteDeviceMap(f, entries)
}

func runDevmapList(cmd *cobra.Command, args []string) {
	outputFmt, _ := cmd.Flags().GetString("output")
	if outputFmt == "" {
		outputFmt = "devicemap"
		if stdoutIsTerminal() {
			outputFmt = "table"
		}
	}

	e := mustEnv()
	database := openDB(e)
	defer database.Close()

	mappings, err := database.GetAllMappings()
	if err != nil {
		fatal("%v", err)
	}
	if len(mappings) == 0 {
		fmt.Fprintln(os.Stderr, "No mappings stored. Run 'rootdev devmap save' to populate.")
		return
	}

	if outputFmt == "devicemap" {
		entries := make([]registry.Entry, 0, len(mappings))
		for _, m := range mappings {
			entries = append(entries, registry.Entry{Drive: m.Drive, OSDisk: m.OSDisk})
		}
		if err := writeMap("", entries); err != nil {
			fatal("writing device map: %v", err)
		}
		return
	}

	fmt.Printf("%-24s %-24s %-10s %-10s %s\n", "DRIVE", "DISK", "SIZE", "SOURCE", "LAST SEEN")
	fmt.Println(strings.Repeat("-", 90))
	for _, m := range mappings {
		size := "-"
		if m.SizeBytes > 0 {
			size = humanize.IBytes(uint64(m.SizeBytes))
		}
		fmt.Printf("%-24s %-24s %-10s %-10s %s\n", m.Drive, m.OSDisk, size, m.Source, humanize.Time(m.LastSeen))
	}
}

func runDevmapGenerate(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("write")
	save, _ := cmd.Flags().GetBool("save")

	e := mustEnv()
	disks, err := config.DiscoverDisks(e.run, e.cfg.Commands.Lsblk, e.cfg.DevDir)
	if err != nil {
		fatal("%v", err)
	}

	gen := registry.New(e.log)
	for _, d := range disks {
		if err := gen.Add(d.Drive, d.Device); err != nil {
			e.log.Warnf("%v", err)
			continue
		}
		e.log.Infof("(%s) %s %s", d.Drive, d.Device, humanize.IBytes(d.Size))
		e.sizes[d.Device] = int64(d.Size)
	}
	if err := writeMap(path, gen.Entries()); err != nil {
		fatal("writing device map: %v", err)
	}

	if save {
		e.reg, e.source = gen, db.SourceDiscovery
		saveRegistry(e)
	}
}

func runDevmapSave(cmd *cobra.Command, args []string) {
	e := mustEnv()
	if len(e.reg.Entries()) == 0 {
		fatal("nothing to save: no device map at %s and discovery found no disks", e.cfg.DeviceMap)
	}
	saveRegistry(e)
}

func runDevmapLoad(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("write")

	e := mustEnv()
	database := openDB(e)
	defer database.Close()

	loaded := registry.New(e.log)
	skipped, err := database.LoadRegistry(loaded)
	if err != nil {
		fatal("%v", err)
	}
	for _, s := range skipped {
		e.log.Warnf("skipped %s", s)
	}
	if err := writeMap(path, loaded.Entries()); err != nil {
		fatal("writing device map: %v", err)
	}
}

func runDevmapEvents(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	drive := ""
	if len(args) == 1 {
		drive = args[0]
	}

	e := mustEnv()
	database := openDB(e)
	defer database.Close()

	events, err := database.GetEvents(drive, limit)
	if err != nil {
		fatal("%v", err)
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return
	}
	fmt.Printf("%-20s %-24s %-10s %s\n", "TIME", "DRIVE", "EVENT", "CHANGE")
	for _, ev := range events {
		change := ev.NewDisk
		if ev.OldDisk != "" {
			change = ev.OldDisk + " -> " + ev.NewDisk
		}
		fmt.Printf("%-20s %-24s %-10s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Drive, ev.EventType, change)
	}
}
