package repo

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Config is the parsed form of .gitlet/config: a git-style INI file with
// sections "[section]" or "[section \"subsection\"]" and "key = value" lines.
// Only the keys this repository understands are modeled explicitly; remotes
// and per-branch settings are the sole subsectioned concerns.
type Config struct {
	CoreBare bool
	Remotes  map[string]*RemoteConfig
	Branches map[string]*BranchConfig
}

// RemoteConfig is the "[remote \"name\"]" section.
type RemoteConfig struct {
	URL string
}

// BranchConfig is the "[branch \"name\"]" section.
type BranchConfig struct {
	Remote string
}

func defaultConfig() *Config {
	return &Config{
		Remotes:  make(map[string]*RemoteConfig),
		Branches: make(map[string]*BranchConfig),
	}
}

func (r *Repo) configPath() string {
	return r.GotDir + "/config"
}

// ReadConfig reads .gitlet/config. A missing file yields an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	f, err := os.Open(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	var section, subsection string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section, subsection = parseSectionHeader(line)
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			continue
		}
		applyConfigValue(cfg, section, subsection, key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func parseSectionHeader(line string) (section, subsection string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	if i := strings.IndexByte(inner, ' '); i >= 0 {
		section = inner[:i]
		subsection = strings.Trim(strings.TrimSpace(inner[i+1:]), `"`)
		return section, subsection
	}
	return inner, ""
}

func parseKeyValue(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func applyConfigValue(cfg *Config, section, subsection, key, value string) {
	switch section {
	case "core":
		if key == "bare" {
			cfg.CoreBare = value == "true"
		}
	case "remote":
		if subsection == "" {
			return
		}
		rc, ok := cfg.Remotes[subsection]
		if !ok {
			rc = &RemoteConfig{}
			cfg.Remotes[subsection] = rc
		}
		if key == "url" {
			rc.URL = value
		}
	case "branch":
		if subsection == "" {
			return
		}
		bc, ok := cfg.Branches[subsection]
		if !ok {
			bc = &BranchConfig{}
			cfg.Branches[subsection] = bc
		}
		if key == "remote" {
			bc.Remote = value
		}
	}
}

// WriteConfig atomically writes .gitlet/config in git-style INI form.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = defaultConfig()
	}

	var buf strings.Builder
	buf.WriteString("[core]\n")
	buf.WriteString(fmt.Sprintf("\tbare = %t\n", cfg.CoreBare))

	remoteNames := make([]string, 0, len(cfg.Remotes))
	for name := range cfg.Remotes {
		remoteNames = append(remoteNames, name)
	}
	sort.Strings(remoteNames)
	for _, name := range remoteNames {
		buf.WriteString(fmt.Sprintf("[remote \"%s\"]\n", name))
		buf.WriteString(fmt.Sprintf("\turl = %s\n", cfg.Remotes[name].URL))
	}

	branchNames := make([]string, 0, len(cfg.Branches))
	for name := range cfg.Branches {
		branchNames = append(branchNames, name)
	}
	sort.Strings(branchNames)
	for _, name := range branchNames {
		bc := cfg.Branches[name]
		if bc.Remote == "" {
			continue
		}
		buf.WriteString(fmt.Sprintf("[branch \"%s\"]\n", name))
		buf.WriteString(fmt.Sprintf("\tremote = %s\n", bc.Remote))
	}

	tmp, err := os.CreateTemp(r.GotDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetRemote stores/updates a named remote URL in repository config,
// overwriting any existing entry for name.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = &RemoteConfig{URL: remoteURL}
	return r.WriteConfig(cfg)
}

// ErrRemoteExists is returned by AddRemote when name is already configured.
var ErrRemoteExists = fmt.Errorf("remote already exists")

// AddRemote records a new named remote, refusing to clobber an existing one.
func (r *Repo) AddRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("add remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("add remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if _, exists := cfg.Remotes[name]; exists {
		return fmt.Errorf("add remote %q: %w", name, ErrRemoteExists)
	}
	cfg.Remotes[name] = &RemoteConfig{URL: remoteURL}
	return r.WriteConfig(cfg)
}

// RemoveRemote deletes a named remote from repository config.
func (r *Repo) RemoveRemote(name string) error {
	name = strings.TrimSpace(name)
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if _, exists := cfg.Remotes[name]; !exists {
		return fmt.Errorf("remove remote: %q is not configured", name)
	}
	delete(cfg.Remotes, name)
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(rc.URL) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.URL, nil
}

// SetBranchRemote records which remote a local branch tracks.
func (r *Repo) SetBranchRemote(branch, remote string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Branches[branch] = &BranchConfig{Remote: remote}
	return r.WriteConfig(cfg)
}
