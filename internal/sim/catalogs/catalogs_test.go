package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigs(t *testing.T, upgrades, substitutions string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "upgrades.json"), []byte(upgrades), 0o644); err != nil {
		t.Fatalf("write upgrades: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "substitutions.json"), []byte(substitutions), 0o644); err != nil {
		t.Fatalf("write substitutions: %v", err)
	}
	return dir
}

const validUpgrades = `[
  {"id":"EXPAND_REGION","max_level":2,"levels":[
    {"costs":[{"item":"PLANK","count":10}]},
    {"costs":[{"item":"PLANK","count":20}]}
  ]},
  {"id":"WATER_SUPPLY","max_level":1,"levels":[
    {"costs":[{"item":"PIPE","count":4}]}
  ]},
  {"id":"GARDEN_PLOT","max_level":1,"prereqs":["WATER_SUPPLY"],"levels":[
    {"costs":[{"item":"SEEDS","count":5}]}
  ]}
]`

const validSubstitutions = `[
  {"primary":"PLANK","substitutes":["SCRAP_WOOD","LOG"]}
]`

func TestLoad_ValidCatalogs(t *testing.T) {
	dir := writeConfigs(t, validUpgrades, validSubstitutions)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Upgrades.Order; len(got) != 3 || got[0] != "EXPAND_REGION" {
		t.Fatalf("order=%v", got)
	}
	def := c.Upgrades.ByID["EXPAND_REGION"]
	if def.MaxLevel != 2 || def.Levels[1].Costs[0].Count != 20 {
		t.Fatalf("def=%#v", def)
	}
	if c.Upgrades.Digest == "" || c.Substitutions.Digest == "" {
		t.Fatalf("missing digests")
	}
	if got := c.Substitutions.SubstitutesFor("PLANK"); len(got) != 2 || got[0] != "SCRAP_WOOD" {
		t.Fatalf("substitutes=%v", got)
	}
	if got := c.Substitutions.SubstitutesFor("PIPE"); got != nil {
		t.Fatalf("undeclared item has substitutes: %v", got)
	}
}

func TestLoad_RejectsBadUpgrades(t *testing.T) {
	cases := []struct {
		name     string
		upgrades string
	}{
		{"missing expand", `[{"id":"WATER_SUPPLY","max_level":1,"levels":[{"costs":[]}]}]`},
		{"duplicate id", `[
			{"id":"EXPAND_REGION","max_level":1,"levels":[{"costs":[]}]},
			{"id":"EXPAND_REGION","max_level":1,"levels":[{"costs":[]}]}
		]`},
		{"level count mismatch", `[{"id":"EXPAND_REGION","max_level":2,"levels":[{"costs":[]}]}]`},
		{"unknown prereq", `[
			{"id":"EXPAND_REGION","max_level":1,"prereqs":["NOPE"],"levels":[{"costs":[]}]}
		]`},
		{"zero max level", `[{"id":"EXPAND_REGION","max_level":0,"levels":[]}]`},
	}
	for _, c := range cases {
		dir := writeConfigs(t, c.upgrades, validSubstitutions)
		if _, err := Load(dir); err == nil {
			t.Fatalf("%s: accepted", c.name)
		}
	}
}

func TestLoad_RejectsDuplicatePrimary(t *testing.T) {
	dir := writeConfigs(t, validUpgrades, `[
		{"primary":"PLANK","substitutes":["SCRAP_WOOD"]},
		{"primary":"PLANK","substitutes":["LOG"]}
	]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("duplicate primary accepted")
	}
}

// The shipped catalog files must load cleanly.
func TestLoad_ShippedConfigs(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load configs: %v", err)
	}
	if _, ok := c.Upgrades.ByID[ExpandRegionUpgradeID]; !ok {
		t.Fatalf("shipped catalog missing %s", ExpandRegionUpgradeID)
	}
}
