package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrInvalidArtifactPath 产物路径试图逃出工作流目录
var ErrInvalidArtifactPath = errors.New("invalid artifact path")

// ArtifactSink 接收已完成的文档。写入失败只记录日志，不影响步骤结果。
type ArtifactSink interface {
	Write(ctx context.Context, workflowID, filename, content string) (string, error)
}

// FileSink 将产物写到 <base>/<workflowID>/<filename>
type FileSink struct {
	base   string
	logger *zap.Logger
}

// NewFileSink 创建文件产物输出
func NewFileSink(base string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{base: base, logger: logger.With(zap.String("component", "artifact_sink"))}
}

// Write 先写临时文件再重命名，读者不会看到写了一半的文档
func (s *FileSink) Write(ctx context.Context, workflowID, filename, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(workflowID) || !filepath.IsLocal(filename) {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidArtifactPath, workflowID, filename)
	}

	target := filepath.Join(s.base, workflowID, filename)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("commit artifact: %w", err)
	}

	sum := sha256.Sum256([]byte(content))
	s.logger.Info("artifact written",
		zap.String("workflow_id", workflowID),
		zap.String("path", target),
		zap.Int("bytes", len(content)),
		zap.String("sha256", hex.EncodeToString(sum[:8])),
	)
	return target, nil
}
