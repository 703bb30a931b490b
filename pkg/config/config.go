package config

import (
	"strings"

	"github.com/xplshn/cmmc/pkg/cli"
)

type Feature int

const (
	FeatNominalStructs Feature = iota
	FeatAsmComments
	FeatTreeLines
	FeatCount
)

type Warning int

const (
	WarnMissingReturn Warning = iota
	WarnShadow
	WarnUnusedValue
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	TargetName string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		TargetName: "mips32",
	}

	features := map[Feature]Info{
		FeatNominalStructs: {"nominal-structs", false, "Compare struct types by tag instead of by field layout."},
		FeatAsmComments:    {"asm-comments", true, "Annotate stack slot allocation in the emitted assembly."},
		FeatTreeLines:      {"tree-lines", false, "Print token line numbers when dumping the syntax tree."},
	}

	warnings := map[Warning]Info{
		WarnMissingReturn: {"missing-return", false, "Warn when a non-void function may end without returning a value."},
		WarnShadow:        {"shadow", false, "Warn when a local declaration hides one from an enclosing scope."},
		WarnUnusedValue:   {"unused-value", false, "Warn about expression statements that neither assign nor call."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag handles one -W, -Wno-, -F or -Fno- switch. It reports whether
// the name was recognised.
func (c *Config) ApplyFlag(flag string) bool {
	trimmed := strings.TrimLeft(flag, "-")
	if len(trimmed) < 2 {
		return false
	}
	kind, name := trimmed[0], trimmed[1:]
	name, isNo := strings.CutPrefix(name, "no-")
	enable := !isNo

	switch kind {
	case 'W':
		if name == "all" {
			for i := Warning(0); i < WarnCount; i++ {
				c.SetWarning(i, enable)
			}
			return true
		}
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return true
		}
	case 'F':
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
			return true
		}
	}
	return false
}

// GroupFlags holds the switches registered by SetupFlagGroups, indexed by
// Warning and Feature value
type GroupFlags struct {
	Warnings []cli.FlagGroupEntry
	Features []cli.FlagGroupEntry
	allOn    bool
	allOff   bool
}

// SetupFlagGroups registers -W<warning> and -F<feature> switches on fs
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) *GroupFlags {
	g := &GroupFlags{}
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		g.Warnings = append(g.Warnings, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Default: info.Enabled, Enabled: new(bool), Disabled: new(bool),
		})
	}
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		g.Features = append(g.Features, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Default: info.Enabled, Enabled: new(bool), Disabled: new(bool),
		})
	}
	fs.Bool(&g.allOn, "Wall", "", false, "Enable all warnings")
	fs.Bool(&g.allOff, "Wno-all", "", false, "Disable all warnings")
	fs.AddFlagGroup("Warning Flags", "warning", g.Warnings)
	fs.AddFlagGroup("Feature Flags", "feature", g.Features)
	return g
}

// Apply copies the parsed switches into c. -Wall/-Wno-all go first so
// individual switches can override them.
func (g *GroupFlags) Apply(c *Config) {
	if g.allOn {
		c.ApplyFlag("-Wall")
	}
	if g.allOff {
		c.ApplyFlag("-Wno-all")
	}
	for i, e := range g.Warnings {
		if *e.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if *e.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, e := range g.Features {
		if *e.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if *e.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
