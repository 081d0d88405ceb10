package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags at release; otherwise filled from the embedded build
// info.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

type versionInfo struct {
	module    string
	version   string
	goVersion string
	commit    string
	built     string
	modified  bool
}

func currentVersion() versionInfo {
	v := versionInfo{
		module:  "meridian",
		version: Version,
		commit:  Commit,
		built:   BuildDate,
	}
	info, ok := readBuildInfo()
	if !ok {
		return v
	}
	v.goVersion = info.GoVersion
	if info.Main.Path != "" {
		v.module = info.Main.Path
	}
	if v.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v.version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if v.commit == "none" {
				v.commit = s.Value
			}
		case "vcs.time":
			if v.built == "unknown" {
				v.built = s.Value
			}
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		v := currentVersion()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "meridian %s\n", v.version)
		fmt.Fprintf(out, "  module: %s\n", v.module)
		commit := v.commit
		if v.modified {
			commit += " (modified)"
		}
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", v.built)
		if v.goVersion != "" {
			fmt.Fprintf(out, "  go:     %s\n", v.goVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
