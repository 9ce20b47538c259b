package model

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"solana-trader/internal/domain"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// DefaultLibraryPath returns the usual onnxruntime shared library name.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// InitializeRuntime loads the onnxruntime library once per process.
func InitializeRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			libPath = DefaultLibraryPath()
		}
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXOracle scores candidates with an ONNX binary classifier taking a
// [1, NumFeatures] float32 input named "input" and producing a [1, 1]
// probability named "output".
type ONNXOracle struct {
	mu      sync.Mutex // the session reuses its tensors
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXOracle loads the model at modelPath.
func NewONNXOracle(modelPath, libPath string) (*ONNXOracle, error) {
	if err := InitializeRuntime(libPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	input, err := ort.NewTensor(ort.NewShape(1, NumFeatures), make([]float32, NumFeatures))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	return &ONNXOracle{session: session, input: input, output: output}, nil
}

// Confidence implements Oracle.
func (o *ONNXOracle) Confidence(ctx context.Context, c domain.Candidate) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return 0, ErrUnavailable
	}
	copy(o.input.GetData(), Features(c))
	if err := o.session.Run(); err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	return clamp01(float64(o.output.GetData()[0])), nil
}

// Close releases the session and tensors.
func (o *ONNXOracle) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	if o.input != nil {
		o.input.Destroy()
		o.input = nil
	}
	if o.output != nil {
		o.output.Destroy()
		o.output = nil
	}
}
