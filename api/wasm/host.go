package wasm

// HostModule is the import module name of the host functions.
const HostModule = "env"

// Host imports available to a guest:
//
//	send_to_frontend(eventPtr, payloadPtr uint32) int32    // 1 when delivered
//	get_app_config(keyPtr uint32) uint32                    // 0 when absent
//	call_other_plugin(pluginIDPtr, messagePtr uint32) uint32 // 0 when absent
//	log_message(level, ptr, length uint32)
//
// Pointers returned by get_app_config and call_other_plugin are owned by the
// host and stay valid until the instance is closed. The guest must not free
// them.
const (
	ImportSendToFrontend  = "send_to_frontend"
	ImportGetAppConfig    = "get_app_config"
	ImportCallOtherPlugin = "call_other_plugin"
	ImportLogMessage      = "log_message"
)

// Log levels accepted by log_message.
const (
	LogDebug uint32 = iota
	LogInfo
	LogWarn
	LogError
)
