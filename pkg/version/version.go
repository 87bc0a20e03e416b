package version

import (
	"cmp"
	"fmt"
	"runtime"
	"runtime/debug"
)

type Info struct {
	Version   string `json:"version"`
	Channel   string `json:"channel"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s-%s", i.Version, i.Channel)
}

// Set at build time with -ldflags "-X github.com/magnetdl/magnetdl/pkg/version.Version=..."
var (
	Version = ""
	Channel = ""
)

func GetInfo() Info {
	info := Info{
		Version:   cmp.Or(Version, "dev"),
		Channel:   cmp.Or(Channel, "local"),
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Commit = s.Value
			}
		}
		if Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	return info
}
