// Package webgpu implements the accelerated batch normalization kernels on
// GPU via WebGPU compute shaders. It is the module's accelerated-library
// binding: a fused alternative implementation of the forward and
// first-order backward contract, selected per call through the
// batchnorm.Kernel capability query.
//
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Accelerator holds the WebGPU device state and the compiled shader and
// pipeline caches for the fused batch normalization kernels.
type Accelerator struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// New creates a new WebGPU accelerator.
// Returns an error if WebGPU is not available or initialization fails.
func New() (acc *Accelerator, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			acc = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	return &Accelerator{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Close releases the GPU resources.
func (a *Accelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pipelines {
		p.Release()
	}
	for _, s := range a.shaders {
		s.Release()
	}
	a.device.Release()
	a.adapter.Release()
	a.instance.Release()
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Accelerator's shaders map.
func (a *Accelerator) compileShader(name, code string) *wgpu.ShaderModule {
	a.mu.RLock()
	if shader, exists := a.shaders[name]; exists {
		a.mu.RUnlock()
		return shader
	}
	a.mu.RUnlock()

	shader := a.device.CreateShaderModuleWGSL(code)

	a.mu.Lock()
	a.shaders[name] = shader
	a.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (a *Accelerator) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	a.mu.RLock()
	if pipeline, exists := a.pipelines[name]; exists {
		a.mu.RUnlock()
		return pipeline
	}
	a.mu.RUnlock()

	// Create compute pipeline with auto layout (nil layout)
	pipeline := a.device.CreateComputePipelineSimple(nil, shader, "main")

	a.mu.Lock()
	a.pipelines[name] = pipeline
	a.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU storage buffer and uploads initial data.
func (a *Accelerator) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createEmptyBuffer creates a zero-filled GPU storage buffer.
func (a *Accelerator) createEmptyBuffer(size uint64) *wgpu.Buffer {
	return a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
}

// createUniformBuffer creates a uniform buffer with proper alignment.
// Uniform buffers require 16-byte alignment for struct fields.
func (a *Accelerator) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15 // Round up to 16-byte boundary

	buffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (a *Accelerator) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := a.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(a.device, wgpu.MapModeRead, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)

	stagingBuffer.Unmap()

	return result, nil
}

// dispatch runs one compute pass of the named shader over the given bind
// group entries.
func (a *Accelerator) dispatch(name, code string, entries []wgpu.BindGroupEntry, workgroups uint32) error {
	shader := a.compileShader(name, code)
	pipeline := a.getOrCreatePipeline(name, shader)

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := a.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := a.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)
	return nil
}
