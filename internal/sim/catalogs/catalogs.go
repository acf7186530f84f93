package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ExpandRegionUpgradeID is the distinguished upgrade that grows the refuge
// footprint; purchasing it triggers a boundary rebuild.
const ExpandRegionUpgradeID = "EXPAND_REGION"

type Catalogs struct {
	Upgrades      UpgradeCatalog
	Substitutions SubstitutionTable
}

type UpgradeCatalog struct {
	ByID   map[string]UpgradeDef
	Order  []string
	Digest string
}

type UpgradeDef struct {
	ID       string     `json:"id"`
	Title    string     `json:"title,omitempty"`
	MaxLevel int        `json:"max_level"`
	Prereqs  []string   `json:"prereqs,omitempty"`
	Levels   []LevelDef `json:"levels"`
}

// LevelDef holds the costs for reaching one level; Levels[0] is the cost of
// level 1.
type LevelDef struct {
	Costs []CostDef `json:"costs"`
}

type CostDef struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// SubstitutionTable is static data consumed by the transaction engine: for a
// primary item type, the alternate types allowed to satisfy a requirement,
// in declaration order.
type SubstitutionTable struct {
	ByPrimary map[string][]string
	Digest    string
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadUpgrades(filepath.Join(configDir, "upgrades.json"), &c.Upgrades); err != nil {
		return nil, err
	}
	if err := loadSubstitutions(filepath.Join(configDir, "substitutions.json"), &c.Substitutions); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadUpgrades(path string, out *UpgradeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []UpgradeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("upgrades.json: %w", err)
	}
	out.ByID = map[string]UpgradeDef{}
	out.Order = out.Order[:0]
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("upgrades.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("upgrades.json: duplicate id %q", d.ID)
		}
		if d.MaxLevel <= 0 {
			return fmt.Errorf("upgrades.json: %s: max_level must be positive", d.ID)
		}
		if len(d.Levels) != d.MaxLevel {
			return fmt.Errorf("upgrades.json: %s: %d levels for max_level %d", d.ID, len(d.Levels), d.MaxLevel)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	if _, ok := out.ByID[ExpandRegionUpgradeID]; !ok {
		return fmt.Errorf("upgrades.json: missing %s", ExpandRegionUpgradeID)
	}
	for _, d := range out.ByID {
		for _, p := range d.Prereqs {
			if _, ok := out.ByID[p]; !ok {
				return fmt.Errorf("upgrades.json: %s: unknown prereq %q", d.ID, p)
			}
		}
	}
	return nil
}

type substitutionRow struct {
	Primary     string   `json:"primary"`
	Substitutes []string `json:"substitutes"`
}

func loadSubstitutions(path string, out *SubstitutionTable) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var rows []substitutionRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("substitutions.json: %w", err)
	}
	out.ByPrimary = map[string][]string{}
	for _, r := range rows {
		if r.Primary == "" {
			return fmt.Errorf("substitutions.json: empty primary")
		}
		if _, dup := out.ByPrimary[r.Primary]; dup {
			return fmt.Errorf("substitutions.json: duplicate primary %q", r.Primary)
		}
		out.ByPrimary[r.Primary] = append([]string(nil), r.Substitutes...)
	}
	return nil
}

// SubstitutesFor returns the declared substitutes for an item type, in
// declaration order. Nil when none are declared.
func (t SubstitutionTable) SubstitutesFor(item string) []string {
	return t.ByPrimary[item]
}
