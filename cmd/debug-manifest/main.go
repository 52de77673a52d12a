// Command debug-manifest prints what an install of a version would fetch
// for the running platform, without downloading any files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/quasar/mcinstall/internal/api"
	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/logging"
	"github.com/quasar/mcinstall/internal/rules"
)

func main() {
	id := "latest"
	if len(os.Args) > 1 {
		id = os.Args[1]
	}

	ctx := context.Background()
	logger := logging.New("warn", "text")
	client := api.NewMojangClient(api.WithLogger(logger))

	var (
		version *core.Version
		err     error
	)
	if id == "latest" {
		version, err = client.Latest(ctx, core.VersionTypeRelease)
	} else {
		version, err = client.FindVersion(ctx, id)
	}
	if err != nil {
		panic(err)
	}
	fmt.Printf("Version: %s (%s) %s\n", version.ID, version.Type, version.URL)

	// The descriptor is persisted as part of fetching, so use a scratch root
	root, err := os.MkdirTemp("", "debug-manifest-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(root)

	details, err := client.FetchDescriptor(ctx, *version, root)
	if err != nil {
		panic(err)
	}

	platform := core.CurrentPlatform()
	fmt.Printf("Platform: %s/%s\n", platform.OSKey(), platform.Arch)
	fmt.Printf("Main class: %s\n", details.MainClass)
	fmt.Printf("Asset index: %s (%s)\n", details.AssetIndex.ID, humanize.Bytes(uint64(details.AssetIndex.TotalSize)))

	for _, mode := range []rules.Mode{rules.ModeLegacy, rules.ModeAccumulate, rules.ModeLastMatch} {
		applies := 0
		for i := range details.Libraries {
			if rules.LibraryApplies(&details.Libraries[i], platform, mode) {
				applies++
			}
		}
		fmt.Printf("Libraries (%s): %d of %d\n", mode, applies, len(details.Libraries))
	}
}
