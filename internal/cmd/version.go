package cmd

import (
	"fmt"
	runtimedebug "runtime/debug"
)

const devVersion = "dev"

// SetVersionInfo sets the string printed by --version. Builds without
// ldflags fall back to the VCS stamp Go embeds in the binary.
func SetVersionInfo(version, commit, date string) {
	if version == devVersion {
		if info, ok := runtimedebug.ReadBuildInfo(); ok {
			commit, date = vcsStamp(info.Settings, commit, date)
		}
	}
	rootCmd.Version = formatVersion(version, commit, date)
}

// vcsStamp returns the short revision and commit time from build settings,
// keeping the given values for anything the settings lack.
func vcsStamp(settings []runtimedebug.BuildSetting, commit, date string) (string, string) {
	var revision string
	var modified bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			if s.Value != "" {
				date = s.Value
			}
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}

	if len(revision) >= 7 {
		commit = revision[:7]
		if modified {
			commit += "-dirty"
		}
	}
	return commit, date
}

func formatVersion(version, commit, date string) string {
	if commit == "" || commit == "unknown" {
		return version
	}
	if date == "" || date == "unknown" {
		return fmt.Sprintf("%s (commit %s)", version, commit)
	}
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}
