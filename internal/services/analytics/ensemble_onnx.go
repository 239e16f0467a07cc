package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	domsvc "QuantBridge/internal/domain/service"
)

var onnxInit struct {
	once sync.Once
	err  error
}

// ONNXEnsembleModel runs a binary classifier exported to ONNX with a float32
// input of shape [1, n] and a probabilities output of shape [1, 2].
type ONNXEnsembleModel struct {
	mu      sync.Mutex
	session *onnxruntime.DynamicAdvancedSession
	width   int
}

// LoadONNXEnsembleModel opens the model. libPath may be empty to use the
// runtime's default shared library lookup.
func LoadONNXEnsembleModel(modelPath, libPath string, width int) (*ONNXEnsembleModel, error) {
	onnxInit.once.Do(func() {
		if libPath != "" {
			onnxruntime.SetSharedLibraryPath(libPath)
		}
		onnxInit.err = onnxruntime.InitializeEnvironment()
	})
	if onnxInit.err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", onnxInit.err)
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"label", "probabilities"}, options)
	if err != nil {
		return nil, fmt.Errorf("load onnx model %s: %w", modelPath, err)
	}
	return &ONNXEnsembleModel{session: session, width: width}, nil
}

func (m *ONNXEnsembleModel) PredictProbability(_ context.Context, features []float64) (float64, error) {
	if len(features) != m.width {
		return 0, fmt.Errorf("onnx: expected %d features, got %d", m.width, len(features))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0, errors.New("onnx: session closed")
	}

	in := make([]float32, len(features))
	for i, f := range features {
		in[i] = float32(f)
	}
	input, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(m.width)), in)
	if err != nil {
		return 0, fmt.Errorf("onnx: input tensor: %w", err)
	}
	defer input.Destroy()

	label, err := onnxruntime.NewEmptyTensor[int64](onnxruntime.NewShape(1))
	if err != nil {
		return 0, fmt.Errorf("onnx: label tensor: %w", err)
	}
	defer label.Destroy()

	probs, err := onnxruntime.NewEmptyTensor[float32](onnxruntime.NewShape(1, 2))
	if err != nil {
		return 0, fmt.Errorf("onnx: probabilities tensor: %w", err)
	}
	defer probs.Destroy()

	if err := m.session.Run([]onnxruntime.Value{input}, []onnxruntime.Value{label, probs}); err != nil {
		return 0, fmt.Errorf("onnx: inference: %w", err)
	}
	return float64(probs.GetData()[1]), nil
}

func (m *ONNXEnsembleModel) Name() string { return "onnx-ensemble" }

func (m *ONNXEnsembleModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

var _ domsvc.EnsembleModel = (*ONNXEnsembleModel)(nil)
