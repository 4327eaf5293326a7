package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

var ErrProfileNotFound = errors.New("calibration profile not found")

// Profile is a named calibration for one gripper model.
type Profile struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Calibration gripper.Calibration `yaml:"calibration"`
}

// ProfileLoader resolves profile names against a list of directories and
// caches parsed profiles by name.
type ProfileLoader struct {
	cache       sync.Map
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) *ProfileLoader {
	return &ProfileLoader{searchPaths: searchPaths}
}

// Load accepts either a profile name ("2f-85") looked up as
// <dir>/<name>.yaml or a path to a YAML file.
func (l *ProfileLoader) Load(name string) (*Profile, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Profile), nil
	}

	data, foundPath, err := l.read(name)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", foundPath, err)
	}
	if err := profile.Calibration.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", foundPath, err)
	}

	l.cache.Store(name, &profile)

	return &profile, nil
}

func (l *ProfileLoader) read(name string) ([]byte, string, error) {
	if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %v", ErrProfileNotFound, name, err)
		}
		return data, name, nil
	}

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".yaml")
		data, err := os.ReadFile(fullPath)
		if err == nil {
			return data, fullPath, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, name, l.searchPaths)
}
