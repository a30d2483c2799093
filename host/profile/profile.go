// Package profile ships named transfer presets. A profile bundles the
// clock mode, divisor and select routing a device family expects, so
// tools can say "mode0-slow" instead of composing register bits.
package profile

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// Profile is one named register preset.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Polarity    bool   `yaml:"polarity"`
	Phase       bool   `yaml:"phase"`
	Divisor     uint8  `yaml:"divisor"`
	SelectMask  uint8  `yaml:"select_mask"`
	AutoAssert  bool   `yaml:"auto_assert"`
	LSBFirst    bool   `yaml:"lsb_first"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

var (
	loadOnce sync.Once
	loaded   []Profile
	loadErr  error
)

func load() {
	var file profileFile
	if err := yaml.Unmarshal(profilesYAML, &file); err != nil {
		loadErr = fmt.Errorf("parsing embedded profiles: %w", err)
		return
	}
	for _, p := range file.Profiles {
		if p.Divisor > 7 || p.SelectMask > 7 {
			loadErr = fmt.Errorf("profile %s out of range: divisor %d, select %d",
				p.Name, p.Divisor, p.SelectMask)
			return
		}
	}
	loaded = file.Profiles
}

// All returns every embedded profile.
func All() ([]Profile, error) {
	loadOnce.Do(load)
	return loaded, loadErr
}

// Find returns the profile with the given name.
func Find(name string) (Profile, bool) {
	profiles, err := All()
	if err != nil {
		return Profile{}, false
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Mode returns the conventional mode number, polarity bit one and
// phase bit zero.
func (p Profile) Mode() int {
	mode := 0
	if p.Polarity {
		mode |= 2
	}
	if p.Phase {
		mode |= 1
	}
	return mode
}

// SetupWord packs the profile into the setup register layout.
func (p Profile) SetupWord() uint8 {
	var w uint8
	if p.Polarity {
		w |= 1 << 7
	}
	if p.Phase {
		w |= 1 << 6
	}
	w |= (p.Divisor & 0x07) << 3
	w |= p.SelectMask & 0x07
	return w
}

// ControlWord packs the profile into the control register layout. With
// run set the word also carries the go bit, so writing it starts a
// transaction.
func (p Profile) ControlWord(run bool) uint8 {
	w := uint8(1<<4 | 1<<3) // transmit and receive enabled
	if p.AutoAssert {
		w |= 1 << 7
	}
	if p.LSBFirst {
		w |= 1 << 5
	}
	if run {
		w |= 1 << 2
	}
	return w
}

func (p Profile) String() string {
	return fmt.Sprintf("%-12s mode%d div=%d sel=%03b %s",
		p.Name, p.Mode(), p.Divisor, p.SelectMask, p.Description)
}
