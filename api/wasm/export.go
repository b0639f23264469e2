// Package wasm names the boundary between the host and a plugin compiled to
// WebAssembly.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a
// 32-bit linear memory model. Strings cross the boundary NUL-terminated.
//
// A guest module must export its linear memory and:
//
//	//go:wasmexport malloc
//	func malloc(size uint32) uint32
//
//	//go:wasmexport free
//	func free(ptr uint32)
//
//	//go:wasmexport plugin_initialize
//	func pluginInitialize(metadataPtr uint32) int32
//
//	//go:wasmexport plugin_handle_message
//	func pluginHandleMessage(inputPtr, outPtr uint32) int32
//
// plugin_initialize receives a 40-byte metadata record (ten little-endian
// uint32 slots). plugin_handle_message stores the response pointer at outPtr;
// the host frees it with free.
//
// Optional exports, treated as successful no-ops when absent:
// plugin_on_mount, plugin_on_dispose, plugin_on_connect,
// plugin_on_disconnect (all () -> int32), plugin_set_history (json) -> int32,
// plugin_get_metadata (recordPtr) -> int32 and plugin_destroy ().
package wasm

// Guest exports.
const (
	ExportMemory        = "memory"
	ExportMalloc        = "malloc"
	ExportFree          = "free"
	ExportInitialize    = "plugin_initialize"
	ExportHandleMessage = "plugin_handle_message"
	ExportOnMount       = "plugin_on_mount"
	ExportOnDispose     = "plugin_on_dispose"
	ExportOnConnect     = "plugin_on_connect"
	ExportOnDisconnect  = "plugin_on_disconnect"
	ExportSetHistory    = "plugin_set_history"
	ExportGetMetadata   = "plugin_get_metadata"
	ExportDestroy       = "plugin_destroy"
)

// RequiredExports must be present for a module to load as a plugin.
var RequiredExports = []string{ExportMalloc, ExportFree, ExportInitialize, ExportHandleMessage}
