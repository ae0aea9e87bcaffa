package engine

import (
	"context"
	"io/fs"
	"testing/fstest"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASIModule is the import namespace of the system-call shim.
const WASIModule = wasi_snapshot_preview1.ModuleName

// instantiateWASI instantiates the preview1 shim once per runtime.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	if mod := r.Module(WASIModule); mod != nil {
		return mod, nil
	}
	builder := r.NewHostModuleBuilder(WASIModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// rootFS returns the filesystem pre-opened at "/" for the guest.
func rootFS(files map[string][]byte) fs.FS {
	mapFS := fstest.MapFS{}
	for name, data := range files {
		mapFS[cleanPath(name)] = &fstest.MapFile{Data: data, Mode: 0o444}
	}
	return mapFS
}

// cleanPath converts a guest path into an fs.FS name.
func cleanPath(name string) string {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" {
		return "."
	}
	return name
}

// fsConfig mounts either the host directory or the in-memory files at "/".
func fsConfig(cfg *Config) wazero.FSConfig {
	fsc := wazero.NewFSConfig()
	if cfg.HostDir != "" {
		return fsc.WithDirMount(cfg.HostDir, "/")
	}
	return fsc.WithFSMount(rootFS(cfg.Files), "/")
}
