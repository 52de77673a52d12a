// Package java finds a Java runtime able to start an installed version.
package java

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var versionRegex = regexp.MustCompile(`(?:java|openjdk) version "([^"]+)"`)

// Installation is a java executable and the version it reported
type Installation struct {
	Path         string
	Version      string
	MajorVersion int
	Vendor       string
}

func (i Installation) String() string {
	vendor := i.Vendor
	if vendor == "" {
		vendor = "Unknown"
	}
	return fmt.Sprintf("Java %d (%s) at %s", i.MajorVersion, vendor, i.Path)
}

// Option configures a Detector
type Option func(*Detector)

// WithSearchPaths replaces the platform's JVM directories
func WithSearchPaths(paths ...string) Option {
	return func(d *Detector) { d.searchPaths = paths }
}

// WithLogger sets the logger used for skipped candidates
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Detector) { d.logger = logger }
}

// Detector looks for java in JAVA_HOME, PATH and the usual JVM directories
type Detector struct {
	searchPaths  []string
	probeTimeout time.Duration
	logger       logrus.FieldLogger
}

// NewDetector creates a detector for the running platform
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		searchPaths:  defaultSearchPaths(),
		probeTimeout: 5 * time.Second,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindAll returns every working installation, newest major version first
func (d *Detector) FindAll(ctx context.Context) []Installation {
	var candidates []string
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		if p := findJavaInDir(javaHome); p != "" {
			candidates = append(candidates, p)
		}
	}
	if p, err := exec.LookPath(javaName()); err == nil {
		candidates = append(candidates, p)
	}
	for _, dir := range d.searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if p := findJavaInDir(filepath.Join(dir, entry.Name())); p != "" {
				candidates = append(candidates, p)
			}
		}
	}

	var found []Installation
	seen := make(map[string]bool)
	for _, path := range candidates {
		if real, err := filepath.EvalSymlinks(path); err == nil {
			path = real
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		inst, err := d.probe(ctx, path)
		if err != nil {
			d.logger.WithError(err).Debugf("Skipping %s", path)
			continue
		}
		found = append(found, *inst)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].MajorVersion > found[j].MajorVersion
	})
	return found
}

// Select picks the oldest installation that satisfies the required major
// version, or the newest one when required is 0.
func (d *Detector) Select(ctx context.Context, required int) (*Installation, error) {
	all := d.FindAll(ctx)
	if len(all) == 0 {
		return nil, fmt.Errorf("no java installation found")
	}
	if required <= 0 {
		return &all[0], nil
	}

	var best *Installation
	for i := range all {
		if all[i].MajorVersion >= required {
			best = &all[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("java %d or newer required, newest found is %s", required, all[0])
	}
	return best, nil
}

func (d *Detector) probe(ctx context.Context, path string) (*Installation, error) {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("running %s -version: %w", path, err)
	}
	inst := parseVersionOutput(path, string(output))
	if inst == nil {
		return nil, fmt.Errorf("unrecognised version output from %s", path)
	}
	return inst, nil
}

func parseVersionOutput(path, output string) *Installation {
	inst := &Installation{Path: path}

	// openjdk version "21.0.1" 2023-10-17
	// java version "1.8.0_391"
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if m := versionRegex.FindStringSubmatch(line); len(m) > 1 {
			inst.Version = m[1]
			inst.MajorVersion = parseMajorVersion(m[1])
		}

		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "graalvm"):
			inst.Vendor = "GraalVM"
		case strings.Contains(lower, "azul"):
			inst.Vendor = "Azul Zulu"
		case strings.Contains(lower, "adoptium") || strings.Contains(lower, "temurin"):
			inst.Vendor = "Eclipse Adoptium"
		case strings.Contains(lower, "oracle"):
			inst.Vendor = "Oracle"
		case strings.Contains(lower, "microsoft"):
			inst.Vendor = "Microsoft"
		case strings.Contains(lower, "openjdk") && inst.Vendor == "":
			inst.Vendor = "OpenJDK"
		}
	}

	if inst.Version == "" {
		return nil
	}
	return inst
}

// parseMajorVersion maps "1.8.0_391" to 8 and "17.0.1" to 17
func parseMajorVersion(version string) int {
	parts := strings.Split(version, ".")
	if parts[0] == "1" && len(parts) >= 2 {
		v, _ := strconv.Atoi(parts[1])
		return v
	}
	v, _ := strconv.Atoi(strings.TrimSuffix(parts[0], "-ea"))
	return v
}

func javaName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

func findJavaInDir(dir string) string {
	for _, candidate := range []string{
		filepath.Join(dir, "bin", javaName()),
		filepath.Join(dir, "Contents", "Home", "bin", javaName()), // macOS .jdk bundle
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func defaultSearchPaths() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Library/Java/JavaVirtualMachines",
			filepath.Join(home, ".sdkman/candidates/java"),
		}
	case "linux":
		return []string{
			"/usr/lib/jvm",
			"/usr/lib64/jvm",
			"/usr/java",
			filepath.Join(home, ".sdkman/candidates/java"),
		}
	case "windows":
		return []string{
			`C:\Program Files\Java`,
			`C:\Program Files\Eclipse Adoptium`,
			`C:\Program Files\Microsoft\jdk`,
		}
	}
	return nil
}
