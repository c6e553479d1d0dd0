// Package compileinfo reports how a binary was built. Gene scores depend on the
// numerical libraries as well as on this module, so their versions are
// reported alongside the commit.
package compileinfo

import (
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"
)

// NumericalModules are the dependencies whose versions can change scores.
var NumericalModules = []string{
	"gonum.org/v1/gonum",
}

type CompileInfo struct {
	Package    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool

	// Modules maps each of NumericalModules found in the build to its
	// version.
	Modules map[string]string
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	deps := ""
	if len(c.Modules) > 0 {
		names := make([]string, 0, len(c.Modules))
		for name := range c.Modules {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"@"+c.Modules[name])
		}
		deps = " Numerical modules: " + strings.Join(parts, ", ") + "."
	}

	return fmt.Sprintf("This %s binary was built with %s at commit %v at time %v.%s%s", c.Package, c.GoVersion, c.Commit, c.CommitTime, mod, deps)
}

func Get() CompileInfo {
	z, ok := debug.ReadBuildInfo()
	if !ok {
		return CompileInfo{}
	}

	return fromBuildInfo(z)
}

func fromBuildInfo(z *debug.BuildInfo) CompileInfo {
	out := CompileInfo{
		GoVersion: z.GoVersion,
		Package:   z.Path,
		Modules:   make(map[string]string),
	}

	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	for _, dep := range z.Deps {
		for _, name := range NumericalModules {
			if dep.Path == name {
				out.Modules[name] = dep.Version
			}
		}
	}

	return out
}

func PrintToStdErr() {
	z := Get()
	fmt.Fprintf(os.Stderr, "%s\n", z)
}
