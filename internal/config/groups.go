package config

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/inertial_scope/internal/chart"
)

// ChannelGroup describes one chart: which message key feeds it, which
// fields of that payload become channels, and how they look.
type ChannelGroup struct {
	Key      string   `yaml:"key"`
	Title    string   `yaml:"title"`
	Unit     string   `yaml:"unit"`
	Fields   []string `yaml:"fields"`
	Labels   []string `yaml:"labels"`
	Colors   []string `yaml:"colors"`
	Capacity int      `yaml:"capacity"`
	// Scale is the initial scale selection: "auto" or a positive number.
	Scale string `yaml:"scale"`
	// DeviceScale routes numeric scale selections through the device
	// configuration endpoint instead of applying them locally.
	DeviceScale bool `yaml:"device_scale"`

	colors []color.RGBA
}

// RGBA returns the parsed trace colors.
func (g ChannelGroup) RGBA() []color.RGBA { return g.colors }

type groupsFile struct {
	Groups []ChannelGroup `yaml:"groups"`
}

// DefaultGroups is the high-speed accelerometer stream: one chart fed by
// the "chunks" payload.
func DefaultGroups(capacity int) []ChannelGroup {
	g := ChannelGroup{
		Key:         "chunks",
		Title:       "IIS3DWB Acceleration",
		Unit:        "g",
		Fields:      []string{"x", "y", "z"},
		Labels:      []string{"X", "Y", "Z"},
		Colors:      []string{"#ef4444", "#10b981", "#3b82f6"},
		Capacity:    capacity,
		Scale:       "auto",
		DeviceScale: true,
	}
	groups := []ChannelGroup{g}
	if err := prepare(groups, capacity); err != nil {
		panic(err)
	}
	return groups
}

// LoadGroups reads the channel-group table from a YAML file. Groups
// without a capacity get defaultCapacity.
func LoadGroups(path string, defaultCapacity int) ([]ChannelGroup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel groups file: %w", err)
	}
	var f groupsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("channel groups %s: %w", path, err)
	}
	if len(f.Groups) == 0 {
		return nil, fmt.Errorf("channel groups %s: no groups defined", path)
	}
	if err := prepare(f.Groups, defaultCapacity); err != nil {
		return nil, fmt.Errorf("channel groups %s: %w", path, err)
	}
	return f.Groups, nil
}

// Groups returns the table named by CHANNEL_GROUPS_FILE, or the default.
func (c *Config) Groups() ([]ChannelGroup, error) {
	if c.ChannelGroupsFile == "" {
		return DefaultGroups(c.DefaultCapacity), nil
	}
	return LoadGroups(c.ChannelGroupsFile, c.DefaultCapacity)
}

func prepare(groups []ChannelGroup, defaultCapacity int) error {
	seen := make(map[string]bool, len(groups))
	for i := range groups {
		g := &groups[i]
		if g.Key == "" {
			return fmt.Errorf("group %d: key is required", i)
		}
		if seen[g.Key] {
			return fmt.Errorf("group %q defined twice", g.Key)
		}
		seen[g.Key] = true

		if len(g.Fields) == 0 {
			return fmt.Errorf("group %q: fields are required", g.Key)
		}
		if len(g.Labels) == 0 {
			g.Labels = make([]string, len(g.Fields))
			for j, f := range g.Fields {
				g.Labels[j] = strings.ToUpper(f)
			}
		}
		if len(g.Labels) != len(g.Fields) {
			return fmt.Errorf("group %q: %d labels for %d fields", g.Key, len(g.Labels), len(g.Fields))
		}
		if g.Capacity == 0 {
			g.Capacity = defaultCapacity
		}
		if g.Capacity < 1 {
			return fmt.Errorf("group %q: capacity must be >= 1, got %d", g.Key, g.Capacity)
		}
		if g.Title == "" {
			g.Title = g.Key
		}
		if g.Scale == "" {
			g.Scale = "auto"
		}
		if g.Scale != "auto" {
			if _, err := chart.ParseScale(g.Scale); err != nil {
				return fmt.Errorf("group %q: %w", g.Key, err)
			}
		}

		g.colors = make([]color.RGBA, 0, len(g.Colors))
		for _, s := range g.Colors {
			c, err := chart.ParseColor(s)
			if err != nil {
				return fmt.Errorf("group %q: %w", g.Key, err)
			}
			g.colors = append(g.colors, c)
		}
	}
	return nil
}
