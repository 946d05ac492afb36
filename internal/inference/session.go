package inference

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrNotInitialized is returned when a session is created before Initialize
var ErrNotInitialized = errors.New("ONNX Runtime not initialized")

// Options configures the ONNX Runtime environment
type Options struct {
	LibraryPath string // shared library, e.g. lib/libonnxruntime.dylib
	UseCoreML   bool   // try the CoreML execution provider first
	Logger      *slog.Logger
}

var (
	initialized bool
	useCoreML   bool
	logger      = slog.New(slog.NewTextHandler(io.Discard, nil))
	initMu      sync.Mutex
)

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize(opts Options) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if opts.Logger != nil {
		logger = opts.Logger
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	useCoreML = opts.UseCoreML
	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	initMu.Lock()
	ready, coreML := initialized, useCoreML
	initMu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "cpu"
	if coreML {
		// Flag 0 = default settings, use Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warn("CoreML execution provider unavailable, using CPU", "model", modelPath, "error", err)
		} else {
			provider = "coreml"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}
	logger.Info("model loaded", "model", modelPath, "provider", provider)

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}
