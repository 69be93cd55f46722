// OS info: platform, distribution, release and uptime.
// Uses gopsutil host info; on Linux the distribution's PRETTY_NAME from
// /etc/os-release is preferred as the display name.
//
// Identity is cached since it rarely changes during runtime; uptime is
// read on every call.
package collector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/vitalis-app/dockdash/internal/models"
)

const osReleasePath = "/etc/os-release"

type osIdentity struct {
	platform string
	distro   string
	release  string
}

// osSource reads OS identity until it first succeeds, and uptime on every call.
type osSource struct {
	mu       sync.Mutex
	loaded   bool
	identity osIdentity

	// osReleasePath is overridable in tests.
	osReleasePath string
}

// Read returns OS identity with the current uptime.
func (s *osSource) Read(ctx context.Context) (models.HostOS, error) {
	identity, err := s.cachedIdentity(ctx)
	if err != nil {
		return models.HostOS{}, err
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return models.HostOS{}, fmt.Errorf("reading uptime: %w", err)
	}

	return models.HostOS{
		Platform:      identity.platform,
		Distro:        identity.distro,
		Release:       identity.release,
		UptimeSeconds: uptime,
	}, nil
}

func (s *osSource) cachedIdentity(ctx context.Context) (osIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.identity, nil
	}
	id, err := s.readIdentity(ctx)
	if err != nil {
		return osIdentity{}, err
	}
	s.identity, s.loaded = id, true
	return id, nil
}

func (s *osSource) readIdentity(ctx context.Context) (osIdentity, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return osIdentity{}, fmt.Errorf("reading host info: %w", err)
	}

	id := osIdentity{
		platform: info.OS,
		distro:   info.Platform,
		release:  info.PlatformVersion,
	}
	if id.platform == "" {
		id.platform = runtime.GOOS
	}
	if id.release == "" {
		id.release = info.KernelVersion
	}

	if id.platform == "linux" {
		path := s.osReleasePath
		if path == "" {
			path = osReleasePath
		}
		if data, err := os.ReadFile(path); err == nil {
			if pretty := prettyName(string(data)); pretty != "" {
				id.distro = pretty
			}
		}
	}
	return id, nil
}

// prettyName extracts PRETTY_NAME (or NAME) from os-release content.
func prettyName(content string) string {
	fields := parseKeyValueFile(content)
	if pretty, ok := fields["PRETTY_NAME"]; ok {
		return strings.Trim(pretty, "\"")
	}
	if name, ok := fields["NAME"]; ok {
		return strings.Trim(name, "\"")
	}
	return ""
}

// parseKeyValueFile parses a file with KEY=VALUE lines (like /etc/os-release).
func parseKeyValueFile(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			fields[parts[0]] = parts[1]
		}
	}
	return fields
}
