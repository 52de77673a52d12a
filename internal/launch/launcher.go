// Package launch builds and runs the java command for an installed version.
package launch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quasar/mcinstall/internal/api"
	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/rules"
)

const launcherName = "mcinstall"

// Identity is the player the game is started for
type Identity struct {
	PlayerName  string
	UUID        string
	AccessToken string
	Online      bool
}

// Options tweaks the generated command
type Options struct {
	Identity Identity
	GameDir  string          // defaults to the install root
	JVMArgs  []string        // prepended to the JVM arguments
	Features map[string]bool // enabled argument features, e.g. has_custom_resolution
}

// Plan is everything needed to start an installed version
type Plan struct {
	ID         string // manifest ID, which names versions/<id>
	Layout     core.Layout
	Version    *core.VersionDetails
	Platform   core.Platform
	Mode       rules.Mode
	Classpath  []string
	NativesDir string
}

// NewPlan reads versions/<id>/<id>.json under root and resolves the
// classpath for the platform.
func NewPlan(root, id string, platform core.Platform, mode rules.Mode) (*Plan, error) {
	if err := core.CheckID(id); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, core.IOError("resolving root", root, err)
	}
	layout := core.NewLayout(abs)

	for _, dir := range []string{layout.VersionDir(id), layout.LibrariesDir(), layout.AssetsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, core.IOError("locating install", dir, err)
		}
		if !info.IsDir() {
			return nil, core.IOError("locating install", dir, fmt.Errorf("not a directory"))
		}
	}

	version, err := api.LoadDescriptor(abs, id)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		ID:         id,
		Layout:     layout,
		Version:    version,
		Platform:   platform,
		Mode:       mode,
		NativesDir: layout.NativesDir(id),
	}
	p.Classpath = p.buildClasspath()
	return p, nil
}

// buildClasspath lists the client jar followed by every applicable
// library artifact
func (p *Plan) buildClasspath() []string {
	paths := []string{p.Layout.VersionJar(p.ID)}

	for i := range p.Version.Libraries {
		lib := &p.Version.Libraries[i]
		if !rules.LibraryApplies(lib, p.Platform, p.Mode) {
			continue
		}
		if lib.Downloads == nil || lib.Downloads.Artifact == nil {
			continue
		}
		// install never writes paths outside libraries/
		path, err := p.Layout.SafeLibrary(lib.Downloads.Artifact.Path)
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// Arguments returns the full java argument list: JVM arguments, main class,
// then game arguments.
func (p *Plan) Arguments(opts Options) []string {
	replacer := p.replacer(opts)

	var args []string
	args = append(args, opts.JVMArgs...)

	if p.Version.Arguments != nil && len(p.Version.Arguments.JVM) > 0 {
		args = append(args, p.expand(p.Version.Arguments.JVM, opts.Features, replacer)...)
	} else {
		// Sensible defaults
		args = append(args, "-Xmx2G", "-Xms512M")
		if p.Platform.OSKey() == "osx" {
			args = append(args, "-XstartOnFirstThread")
		}
		args = append(args,
			"-Djava.library.path="+p.NativesDir,
			"-cp", strings.Join(p.Classpath, p.Platform.ClasspathSeparator()),
		)
	}

	args = append(args, p.Version.MainClass)

	if p.Version.Arguments != nil && len(p.Version.Arguments.Game) > 0 {
		args = append(args, p.expand(p.Version.Arguments.Game, opts.Features, replacer)...)
	} else if p.Version.MinecraftArguments != "" {
		// Legacy format
		for _, arg := range strings.Fields(p.Version.MinecraftArguments) {
			args = append(args, replacer.Replace(arg))
		}
	}

	return args
}

func (p *Plan) expand(list []core.Argument, features map[string]bool, replacer *strings.Replacer) []string {
	var out []string
	for _, arg := range list {
		if len(arg.Rules) > 0 && !rules.EvaluateFeatures(arg.Rules, p.Platform, features, p.Mode) {
			continue
		}
		for _, v := range arg.Values {
			out = append(out, replacer.Replace(v))
		}
	}
	return out
}

func (p *Plan) replacer(opts Options) *strings.Replacer {
	id := opts.Identity
	name := id.PlayerName
	if name == "" {
		name = "Player"
	}
	uuid := id.UUID
	if uuid == "" {
		uuid = "00000000-0000-0000-0000-000000000000"
	}
	token := id.AccessToken
	if token == "" {
		token = "0"
	}
	userType := "legacy"
	if id.Online {
		userType = "msa"
	}
	gameDir := opts.GameDir
	if gameDir == "" {
		gameDir = p.Layout.Root
	}

	return strings.NewReplacer(
		"${auth_player_name}", name,
		"${version_name}", p.ID,
		"${game_directory}", gameDir,
		"${assets_root}", p.Layout.AssetsDir(),
		"${game_assets}", p.Layout.AssetsDir(),
		"${assets_index_name}", p.Version.AssetIndex.ID,
		"${auth_uuid}", uuid,
		"${auth_access_token}", token,
		"${auth_session}", token,
		"${auth_xuid}", "0",
		"${clientid}", "0",
		"${user_type}", userType,
		"${version_type}", string(p.Version.Type),
		"${user_properties}", "{}",
		"${natives_directory}", p.NativesDir,
		"${library_directory}", p.Layout.LibrariesDir(),
		"${classpath_separator}", p.Platform.ClasspathSeparator(),
		"${classpath}", strings.Join(p.Classpath, p.Platform.ClasspathSeparator()),
		"${launcher_name}", launcherName,
		"${launcher_version}", "1",
	)
}

// Command returns the java process for the plan, run from the game directory
func (p *Plan) Command(ctx context.Context, javaPath string, opts Options) *exec.Cmd {
	cmd := exec.CommandContext(ctx, javaPath, p.Arguments(opts)...)
	cmd.Dir = opts.GameDir
	if cmd.Dir == "" {
		cmd.Dir = p.Layout.Root
	}
	return cmd
}

// Launcher runs a plan and forwards the game's output to the logger
type Launcher struct {
	logger logrus.FieldLogger
}

// NewLauncher creates a new launcher
func NewLauncher(logger logrus.FieldLogger) *Launcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Launcher{logger: logger}
}

// Run starts the game and blocks until it exits
func (l *Launcher) Run(ctx context.Context, plan *Plan, javaPath string, opts Options) error {
	if gameDir := opts.GameDir; gameDir != "" {
		if err := os.MkdirAll(gameDir, 0755); err != nil {
			return core.IOError("creating game directory", gameDir, err)
		}
	}

	cmd := plan.Command(ctx, javaPath, opts)

	// Capture output
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", javaPath, err)
	}
	l.logger.WithField("pid", cmd.Process.Pid).Infof("Started %s", plan.ID)

	// Stream logs
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); l.streamLog(stdout, "stdout") }()
	go func() { defer wg.Done(); l.streamLog(stderr, "stderr") }()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("game exited with error: %w", err)
	}
	l.logger.Info("Game closed")
	return nil
}

func (l *Launcher) streamLog(r io.Reader, stream string) {
	logger := l.logger.WithField("stream", stream)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := scanner.Text()

		isImportant := stream == "stderr" ||
			strings.Contains(text, "[FATAL]") ||
			strings.Contains(text, "[ERROR]") ||
			strings.Contains(text, "[WARN]") ||
			strings.Contains(text, "Exception") ||
			strings.Contains(text, "Error")

		if isImportant {
			logger.Warn(text)
		} else {
			logger.Debug(text)
		}
	}
}
