package install

import (
	"sort"
	"sync"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/download"
	"github.com/quasar/mcinstall/internal/extract"
	"github.com/quasar/mcinstall/internal/rules"
)

// clientTask fetches versions/<id>/<id>.jar. The id is the manifest's, which
// the descriptor's own id field may omit or disagree with.
func clientTask(layout core.Layout, id string, details *core.VersionDetails) download.Task {
	client := details.Downloads.Client
	return download.Task{
		URL:  client.URL,
		Path: layout.VersionJar(id),
		SHA1: client.SHA1,
		Size: client.Size,
		Kind: download.KindClient,
	}
}

// nativeSink collects extracted native paths from concurrent workers
type nativeSink struct {
	mu    sync.Mutex
	paths []string
}

func (s *nativeSink) add(paths []string) {
	s.mu.Lock()
	s.paths = append(s.paths, paths...)
	s.mu.Unlock()
}

func (s *nativeSink) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.paths...)
	sort.Strings(out)
	return out
}

// libraryTasks returns artifact and native classifier tasks for every
// library that applies to the platform. Native archives are unpacked into
// the version's natives directory once they are on disk.
// Artifact paths that resolve outside libraries/ fail the whole batch.
func libraryTasks(layout core.Layout, id string, details *core.VersionDetails, opts Options, sink *nativeSink) ([]download.Task, error) {
	nativesDir := layout.NativesDir(id)

	var tasks []download.Task
	for i := range details.Libraries {
		lib := &details.Libraries[i]
		if !rules.LibraryApplies(lib, opts.Platform, opts.RuleMode) {
			continue
		}

		if lib.Downloads != nil && lib.Downloads.Artifact != nil && lib.Downloads.Artifact.URL != "" {
			artifact := lib.Downloads.Artifact
			path, err := layout.SafeLibrary(artifact.Path)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, download.Task{
				URL:  artifact.URL,
				Path: path,
				SHA1: artifact.SHA1,
				Size: artifact.Size,
				Kind: download.KindLibrary,
			})
		}

		_, native := lib.NativeClassifier(opts.Platform)
		if native == nil || native.URL == "" {
			continue
		}
		nativePath, err := layout.SafeLibrary(native.Path)
		if err != nil {
			return nil, err
		}

		exclude := append([]string(nil), opts.NativesExclude...)
		if lib.Extract != nil {
			exclude = append(exclude, extract.PrefixPatterns(lib.Extract.Exclude)...)
		}

		tasks = append(tasks, download.Task{
			URL:  native.URL,
			Path: nativePath,
			SHA1: native.SHA1,
			Size: native.Size,
			Kind: download.KindNative,
			PostProcess: func(data []byte) error {
				written, err := extract.Zip(data, nativesDir, extract.Options{Exclude: exclude})
				if err != nil {
					return err
				}
				sink.add(written)
				return nil
			},
		})
	}
	return tasks, nil
}

// assetTasks returns one task per distinct object hash. Objects are ordered
// by descending size when sortBySize is set, otherwise by virtual path.
func assetTasks(layout core.Layout, index *core.AssetIndex, baseURL string, sortBySize bool) []download.Task {
	names := make([]string, 0, len(index.Objects))
	for name := range index.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool, len(names))
	objects := make([]core.AssetObject, 0, len(names))
	for _, name := range names {
		obj := index.Objects[name]
		if seen[obj.Hash] {
			continue
		}
		seen[obj.Hash] = true
		objects = append(objects, obj)
	}

	if sortBySize {
		sort.SliceStable(objects, func(i, j int) bool {
			return objects[i].Size > objects[j].Size
		})
	}

	tasks := make([]download.Task, 0, len(objects))
	for _, obj := range objects {
		tasks = append(tasks, download.Task{
			URL:  obj.URL(baseURL),
			Path: layout.AssetObject(obj),
			SHA1: obj.Hash,
			Size: obj.Size,
			Kind: download.KindAsset,
		})
	}
	return tasks
}
