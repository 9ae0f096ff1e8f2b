/*
File Name:  config.go

Node configuration, loaded from YAML with an embedded default -- the
same idiom as the teacher's Config.go/Settings.go (gopkg.in/yaml.v3 +
go:embed). Unlike the teacher, which persists the node's only
long-term secret (a secp256k1 private key), this config carries no
private key material: spec §3 "Session key" is explicit that every one
of a node's own keys -- X25519, Ed25519 signing, and Ed25519 identity
alike -- is generated fresh at session start and cleared at stop, so
there is nothing here for a restart to resume.
*/

package node

import (
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything a Node needs beyond its transport.
type Config struct {
	Nickname string `yaml:"Nickname"`

	AnnounceInterval   Duration `yaml:"AnnounceInterval"`
	GCInterval         Duration `yaml:"GCInterval"`
	PeerEvictionWindow Duration `yaml:"PeerEvictionWindow"`
	DedupRetention     Duration `yaml:"DedupRetention"`
	DedupCapacity      int      `yaml:"DedupCapacity"`
	FragmentExpiry     Duration `yaml:"FragmentExpiry"`

	// BlocklistPath/FavoritesPath, if non-empty, back the blocklist
	// and favorites sets with Pogreb instead of memory (SPEC_FULL §20).
	BlocklistPath string `yaml:"BlocklistPath"`
	FavoritesPath string `yaml:"FavoritesPath"`

	// MTU is the post-encode packet size budget (spec §7 MessageTooLarge).
	MTU int `yaml:"MTU"`
}

// DefaultConfig returns the configuration spec.md's defaults describe.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval:   Duration{Seconds: 30},
		GCInterval:         Duration{Seconds: 60},
		PeerEvictionWindow: Duration{Seconds: 300},
		DedupRetention:     Duration{Seconds: 600},
		DedupCapacity:      10000,
		FragmentExpiry:     Duration{Seconds: 60},
		MTU:                512,
	}
}

// Duration is a YAML-friendly seconds-based duration (the teacher
// prefers plain scalar fields in its config over time.Duration's
// string parsing quirks).
type Duration struct {
	Seconds int `yaml:"Seconds"`
}

// LoadConfig reads filename, falling back to DefaultConfig() if the
// file does not exist or is empty -- mirrors the teacher's LoadConfig.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

	stat, err := os.Stat(filename)
	if err != nil && os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return cfg, err
	} else if stat.Size() == 0 {
		return cfg, nil
	}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// SaveConfig writes cfg to filename as YAML.
func SaveConfig(filename string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, data, 0644)
}
