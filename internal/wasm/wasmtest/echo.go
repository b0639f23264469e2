// Package wasmtest provides guest modules for tests.
package wasmtest

// EchoModule returns a minimal echo plugin:
//
//	(import "env" "send_to_frontend" (func (param i32 i32) (result i32)))
//	(memory (export "memory") 1)
//	(global $heap (mut i32) (i32.const 1024))
//	(func (export "malloc") (param i32) (result i32)  ;; bump allocator
//	  global.get $heap  global.get $heap  local.get 0  i32.add  global.set $heap)
//	(func (export "free") (param i32))
//	(func (export "plugin_initialize") (param i32) (result i32) i32.const 0)
//	(func (export "plugin_on_mount") (result i32) i32.const 0)
//	(func (export "plugin_handle_message") (param $in i32) (param $out i32) (result i32)
//	  (i32.store (local.get $out) (local.get $in))
//	  (drop (call 0 (local.get $in) (local.get $in)))
//	  i32.const 0)
//
// plugin_handle_message answers with its input and sends it to the frontend
// as both event name and payload.
func EchoModule() []byte {
	b := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// type section: (i32)->i32, (i32)->(), (i32,i32)->i32, ()->i32
	b = append(b, 0x01, 0x14, 0x04,
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x01, 0x7f, 0x00,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
		0x60, 0x00, 0x01, 0x7f,
	)

	// import section
	b = append(b, 0x02, 0x18, 0x01, 0x03)
	b = append(b, "env"...)
	b = append(b, 0x10)
	b = append(b, "send_to_frontend"...)
	b = append(b, 0x00, 0x02)

	// function section
	b = append(b, 0x03, 0x06, 0x05, 0x00, 0x01, 0x00, 0x03, 0x02)

	// memory section: one page
	b = append(b, 0x05, 0x03, 0x01, 0x00, 0x01)

	// global section: mutable i32 = 1024
	b = append(b, 0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b)

	// export section
	b = append(b, 0x07, 0x58, 0x06)
	export := func(name string, kind, index byte) {
		b = append(b, byte(len(name)))
		b = append(b, name...)
		b = append(b, kind, index)
	}
	export("memory", 0x02, 0x00)
	export("malloc", 0x00, 0x01)
	export("free", 0x00, 0x02)
	export("plugin_initialize", 0x00, 0x03)
	export("plugin_on_mount", 0x00, 0x04)
	export("plugin_handle_message", 0x00, 0x05)

	// code section
	b = append(b, 0x0a, 0x2d, 0x05,
		// malloc
		0x0b, 0x00, 0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x0b,
		// free
		0x02, 0x00, 0x0b,
		// plugin_initialize
		0x04, 0x00, 0x41, 0x00, 0x0b,
		// plugin_on_mount
		0x04, 0x00, 0x41, 0x00, 0x0b,
		// plugin_handle_message
		0x12, 0x00,
		0x20, 0x01, 0x20, 0x00, 0x36, 0x02, 0x00,
		0x20, 0x00, 0x20, 0x00, 0x10, 0x00, 0x1a,
		0x41, 0x00, 0x0b,
	)
	return b
}
