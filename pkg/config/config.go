// Package config stores named session profiles and reads environment overrides
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"screen-sync/pkg/serial"
	"screen-sync/pkg/session"
)

// Source kinds a profile can name
const (
	SourceSerial  = "serial"
	SourceCommand = "command"
	SourceCapture = "capture"
)

// ProfileSource says where a profile's bytes come from
type ProfileSource struct {
	Kind    string         `json:"kind"`
	Serial  *serial.Config `json:"serial,omitempty"`
	Command []string       `json:"command,omitempty"`
	Capture string         `json:"capture,omitempty"`
}

// Validate checks if the source is complete for its kind
func (s ProfileSource) Validate() error {
	switch s.Kind {
	case SourceSerial:
		if s.Serial == nil {
			return fmt.Errorf("serial source needs serial settings")
		}
		if err := s.Serial.Validate(); err != nil {
			return fmt.Errorf("invalid serial config: %w", err)
		}
	case SourceCommand:
		if len(s.Command) == 0 || s.Command[0] == "" {
			return fmt.Errorf("command source needs a command")
		}
	case SourceCapture:
		if s.Capture == "" {
			return fmt.Errorf("capture source needs a file")
		}
	case "":
		// session settings only
	default:
		return fmt.Errorf("unknown source kind: %q", s.Kind)
	}
	return nil
}

// ProfileManager defines the profile store operations
type ProfileManager interface {
	SaveProfile(profile Profile) error
	LoadProfile(name string) (Profile, error)
	ListProfiles() ([]Profile, error)
	DeleteProfile(name string) error
	UpdateProfile(name string, cfg session.Config) error
	ProfileExists(name string) bool
	DefaultProfile() Profile
}

// Profile is a named session configuration with an optional source
type Profile struct {
	Name        string         `json:"name"`
	Session     session.Config `json:"session"`
	Source      ProfileSource     `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUsedAt  time.Time      `json:"last_used_at"`
	Description string         `json:"description,omitempty"`
}

// Validate checks if the profile is valid
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := p.Session.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	if err := p.Source.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at timestamp cannot be zero")
	}
	return nil
}

// storage is the on-disk layout of the profile file
type storage struct {
	Profiles map[string]Profile `json:"profiles"`
	Version  string             `json:"version"`
}

const storageVersion = "1.0"

// DefaultDir returns the per-user directory profiles are kept in
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "screen-sync")
}

// FileProfileManager keeps profiles in a JSON file
type FileProfileManager struct {
	dir  string
	file string
}

// NewFileProfileManager creates a manager storing profiles.json under dir
func NewFileProfileManager(dir string) *FileProfileManager {
	return &FileProfileManager{dir: dir, file: "profiles.json"}
}

// Initialize creates the directory and an empty profile file if needed
func (m *FileProfileManager) Initialize() error {
	if m.dir != "" {
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if _, err := os.Stat(m.Path()); os.IsNotExist(err) {
		if err := m.saveStorage(emptyStorage()); err != nil {
			return fmt.Errorf("failed to initialize profile file: %w", err)
		}
	}
	return nil
}

// SaveProfile stores profile, keeping the creation time and description of
// an existing profile with the same name
func (m *FileProfileManager) SaveProfile(profile Profile) error {
	if err := m.Initialize(); err != nil {
		return err
	}

	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.LastUsedAt = now
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	st, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load existing profiles: %w", err)
	}

	if existing, ok := st.Profiles[profile.Name]; ok {
		profile.CreatedAt = existing.CreatedAt
		if profile.Description == "" {
			profile.Description = existing.Description
		}
	}
	st.Profiles[profile.Name] = profile

	if err := m.saveStorage(st); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// LoadProfile returns the profile called name
func (m *FileProfileManager) LoadProfile(name string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name cannot be empty")
	}

	st, err := m.loadStorage()
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profiles: %w", err)
	}

	profile, ok := st.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile '%s' not found", name)
	}
	return profile, nil
}

// MarkUsed records that the profile was just used
func (m *FileProfileManager) MarkUsed(name string) error {
	return m.modify(name, func(p *Profile) { p.LastUsedAt = time.Now() })
}

// ListProfiles returns every profile sorted by name
func (m *FileProfileManager) ListProfiles() ([]Profile, error) {
	st, err := m.loadStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make([]Profile, 0, len(st.Profiles))
	for _, p := range st.Profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// DeleteProfile removes the profile called name
func (m *FileProfileManager) DeleteProfile(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	st, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if _, ok := st.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}
	delete(st.Profiles, name)

	if err := m.saveStorage(st); err != nil {
		return fmt.Errorf("failed to save profiles after deletion: %w", err)
	}
	return nil
}

// DefaultProfile returns an unnamed profile with the default session settings
func (m *FileProfileManager) DefaultProfile() Profile {
	return Profile{Session: session.DefaultConfig()}
}

// UpdateProfile replaces the session settings of an existing profile
func (m *FileProfileManager) UpdateProfile(name string, cfg session.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return m.modify(name, func(p *Profile) {
		p.Session = cfg
		p.LastUsedAt = time.Now()
	})
}

// SetDescription sets the description of a profile
func (m *FileProfileManager) SetDescription(name, description string) error {
	return m.modify(name, func(p *Profile) { p.Description = description })
}

func (m *FileProfileManager) modify(name string, fn func(*Profile)) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	st, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	profile, ok := st.Profiles[name]
	if !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}

	fn(&profile)
	st.Profiles[name] = profile

	if err := m.saveStorage(st); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// ProfileExists checks if a profile with the given name exists
func (m *FileProfileManager) ProfileExists(name string) bool {
	if name == "" {
		return false
	}
	st, err := m.loadStorage()
	if err != nil {
		return false
	}
	_, ok := st.Profiles[name]
	return ok
}

// ExportProfile writes one profile to a JSON file
func (m *FileProfileManager) ExportProfile(name, path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	profile, err := m.LoadProfile(name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// ImportProfile reads a profile written by ExportProfile and saves it
func (m *FileProfileManager) ImportProfile(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile file: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to parse profile file: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile in file: %w", err)
	}
	return m.SaveProfile(profile)
}

// SearchProfiles matches query against profile names and descriptions
func (m *FileProfileManager) SearchProfiles(query string) ([]Profile, error) {
	profiles, err := m.ListProfiles()
	if err != nil || query == "" {
		return profiles, err
	}

	query = strings.ToLower(query)
	var results []Profile
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Description), query) {
			results = append(results, p)
		}
	}
	return results, nil
}

// Path returns the full path of the profile file
func (m *FileProfileManager) Path() string {
	return filepath.Join(m.dir, m.file)
}

func emptyStorage() storage {
	return storage{Profiles: make(map[string]Profile), Version: storageVersion}
}

func (m *FileProfileManager) loadStorage() (storage, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return emptyStorage(), nil
		}
		return storage{}, fmt.Errorf("failed to read profile file: %w", err)
	}

	var st storage
	if err := json.Unmarshal(data, &st); err != nil {
		return storage{}, fmt.Errorf("failed to parse profile file: %w", err)
	}
	if st.Profiles == nil {
		st.Profiles = make(map[string]Profile)
	}
	return st, nil
}

// saveStorage writes to a temporary file and renames it into place
func (m *FileProfileManager) saveStorage(st storage) error {
	path := m.Path()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary profile file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary profile file: %w", err)
	}
	return nil
}
