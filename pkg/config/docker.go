package config

import (
	"os"
	"strings"
)

// runningInDocker reports whether the process appears to be inside a
// container: the /.dockerenv marker or a docker/containerd cgroup entry.
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "containerd")
}

// ResolveHostForDocker rewrites loopback database hosts to
// host.docker.internal when the orchestrator itself runs inside a container,
// so a developer's "localhost" datasource keeps working.
func ResolveHostForDocker(host string) string {
	if !runningInDocker() {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
