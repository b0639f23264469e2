// Package callbacks holds the host-provided function tables a module uses to
// reach back into the host, keyed by instance id.
package callbacks

import (
	"github.com/woxQAQ/plugin-bridge/internal/abi"
)

// Table is the set of host functions handed to a module instance.
//
// Argument pointers are allocated by the caller in Memory and stay owned by the
// caller; the callee must copy what it needs before returning. Pointers
// returned by GetAppConfig and CallOtherPlugin are owned by the host and must
// not be freed by the module; once copied they are handed back through
// Release when it is set. Null results mean "no value".
type Table struct {
	// SendToFrontend delivers an event to the frontend. Signature: (event, payload) -> delivered.
	SendToFrontend func(event, payload abi.Ptr) bool

	// GetAppConfig reads an application setting. Signature: (key) -> value or Null.
	GetAppConfig func(key abi.Ptr) abi.Ptr

	// CallOtherPlugin forwards a message to another plugin. Signature: (plugin_id, message) -> reply or Null.
	CallOtherPlugin func(pluginID, message abi.Ptr) abi.Ptr

	// Release returns a result of GetAppConfig or CallOtherPlugin to the host. Optional.
	Release func(result abi.Ptr)

	// Memory is the boundary memory all pointers above refer to.
	Memory abi.Memory
}

// Valid reports whether every function and the memory are set.
func (t Table) Valid() bool {
	return t.SendToFrontend != nil && t.GetAppConfig != nil && t.CallOtherPlugin != nil && t.Memory != nil
}
