//go:build linux

package sandbox

// applyPlatformRestrictions restricts this process's filesystem access
// via Landlock before the WASM runtime touches req.WasmPath.
func applyPlatformRestrictions(req Request) error {
	return applyLandlock(req)
}
