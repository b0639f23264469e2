package wasm

import (
	"context"
	"fmt"
	"os"
	"time"

	wasmabi "github.com/woxQAQ/plugin-bridge/api/wasm"
	"go.uber.org/zap"
)

// ModuleLoader reads and compiles guest plugin binaries.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource provides guest bytecode.
type ModuleSource interface {
	Bytes() ([]byte, error)
	// Name identifies the module in the compile cache.
	Name() string
}

// FileModuleSource loads a guest from disk.
type FileModuleSource struct {
	Path string
}

func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f *FileModuleSource) Name() string {
	return f.Path
}

// MemoryModuleSource serves a guest from a byte slice.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule compiles source, or returns the cached compilation. Modules
// missing any of the required plugin exports are rejected.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit", zap.String("module", source.Name()))
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
	)
	start := time.Now()

	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{ModuleName: source.Name(), Err: err}
	}

	exports := compiled.ExportedFunctions()
	for _, name := range wasmabi.RequiredExports {
		if _, ok := exports[name]; !ok {
			_ = compiled.Close(ctx)
			return nil, &FunctionNotFoundError{ModuleName: source.Name(), FunctionName: name}
		}
	}
	if _, ok := compiled.ExportedMemories()[wasmabi.ExportMemory]; !ok {
		_ = compiled.Close(ctx)
		return nil, &MemoryAccessError{Operation: "export", Err: fmt.Errorf("module %s does not export memory", source.Name())}
	}

	module := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now(),
	}
	l.runtime.StoreCompiledModule(module)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Duration("duration", time.Since(start)),
	)
	return module, nil
}

// LoadModuleFromFile loads the guest at path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}

// LoadModuleFromMemory loads a guest from data under name.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}
