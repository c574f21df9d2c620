package model

import (
	_ "embed"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"coldtrace/internal/config"
	"coldtrace/internal/risk"
	"coldtrace/internal/types"
)

//go:embed default_artifact.json
var defaultArtifact []byte

// Load reads, decompresses, and validates a model artifact. An empty path
// loads the artifact embedded in the binary; paths ending in .zst are
// zstd-compressed.
func Load(path string) (*Q10Model, error) {
	data := defaultArtifact
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeModelArtifact, "failed to read model artifact", err)
		}
		data = raw
		if strings.HasSuffix(path, ".zst") {
			data, err = decompressArtifact(raw)
			if err != nil {
				return nil, err
			}
		}
	}

	a, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(a), nil
}

// LoadOrNil loads the configured artifact and wraps it per the classifier
// toggle. On failure it logs and returns an untyped nil so the risk engine
// serves degraded predictions instead of the process refusing to start.
func LoadOrNil(cfg config.ModelConfig, logger *slog.Logger) risk.Model {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := Load(cfg.ArtifactPath)
	if err != nil {
		logger.Error("model load failed, serving degraded predictions",
			"path", cfg.ArtifactPath, "error", err)
		return nil
	}
	logger.Info("model loaded",
		"version", m.Version(), "crops", len(m.crops), "categories", len(m.categories),
		"classifier_enabled", cfg.EnableClassifier)
	if !cfg.EnableClassifier {
		return risk.RegressorOnly(m)
	}
	return m
}

func decompressArtifact(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeModelArtifact, "failed to initialize zstd decoder", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeModelArtifact, "failed to decompress model artifact", err)
	}
	return out, nil
}
