package plugin

// Symbol names a loader resolves in a plugin module.
const (
	CreatePluginSymbol  = "create_plugin"
	DestroyPluginSymbol = "destroy_plugin"
)

// CreatePluginFunc is the constructor a plugin module exports as create_plugin.
type CreatePluginFunc func(env *Env) *Interface

// DestroyPlugin releases an interface obtained from a CreatePluginFunc.
// A nil interface is ignored.
func DestroyPlugin(iface *Interface) {
	if iface == nil || iface.Destroy == nil {
		return
	}
	iface.Destroy(iface.PluginPtr)
}

// Factory returns a CreatePluginFunc that builds a fresh handler per call.
func Factory(newHandler func() Handler) CreatePluginFunc {
	return func(env *Env) *Interface {
		return NewInterface(newHandler(), env)
	}
}
