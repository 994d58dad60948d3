// Package executor materializes proposed actions inside a safety envelope.
// Only allow-listed action kinds run, writes stay under the configured file
// and byte ceilings, and every path is confined to the work tree.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/pkg/models"
	"github.com/pinkman-dev/pinkman/pkg/qaerrors"
)

const (
	commitAuthorName  = "pinkman"
	commitAuthorEmail = "pinkman@noreply.local"
)

// Executor applies actions to the work tree. Actions fail independently;
// there is no rollback. Safe for concurrent use.
type Executor struct {
	cfg    config.ExecutorConfig
	logger *zap.Logger

	mu           sync.Mutex
	pathLocks    map[string]*sync.Mutex
	filesWritten int
	bytesWritten int64
}

// New creates an Executor bound to cfg.WorkDir
func New(cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		logger:    logger.Named("executor"),
		pathLocks: map[string]*sync.Mutex{},
	}
}

// Apply runs every action in order. A failed action is recorded and the rest
// still run; if any failed the returned error wraps ErrExecutionPartial.
func (e *Executor) Apply(ctx context.Context, actions []models.ProposedAction) (*models.ExecutionResult, error) {
	result := &models.ExecutionResult{}

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ar := models.ActionResult{Action: action, DryRun: e.cfg.DryRun}
		if err := e.apply(action); err != nil {
			ar.Error = err.Error()
			e.logger.Warn("action failed",
				zap.String("kind", string(action.Kind)),
				zap.String("path", action.Path),
				zap.Error(err))
		} else {
			ar.Applied = !e.cfg.DryRun
		}
		result.Results = append(result.Results, ar)
	}

	e.mu.Lock()
	result.FilesWritten = e.filesWritten
	result.BytesWritten = e.bytesWritten
	e.mu.Unlock()

	if failed := len(actions) - applied(result); failed > 0 {
		return result, fmt.Errorf("%w: %d of %d actions failed",
			qaerrors.ErrExecutionPartial, failed, len(actions))
	}
	return result, nil
}

func (e *Executor) apply(action models.ProposedAction) error {
	switch action.Kind {
	case models.ActionWriteFile:
		return e.writeFile(action.Path, []byte(action.Content))
	case models.ActionApplyPatch:
		return e.applyPatch(action.Path, action.Content)
	case models.ActionCommit:
		return e.commit(action.Message)
	default:
		return fmt.Errorf("action kind %q is not allowed", action.Kind)
	}
}

// resolve confines a relative path to the work tree
func (e *Executor) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute path %q rejected", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the work tree", path)
	}
	return filepath.Join(e.cfg.WorkDir, clean), nil
}

func (e *Executor) lockPath(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		e.pathLocks[path] = l
	}
	return l
}

// reserve charges a prospective write against the run budget
func (e *Executor) reserve(newFile bool, size int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	files := e.filesWritten
	if newFile {
		files++
	}
	if files > e.cfg.MaxFiles {
		return fmt.Errorf("file ceiling of %d reached", e.cfg.MaxFiles)
	}
	if e.bytesWritten+size > e.cfg.MaxBytes {
		return fmt.Errorf("byte ceiling of %d reached", e.cfg.MaxBytes)
	}
	e.filesWritten = files
	e.bytesWritten += size
	return nil
}

func (e *Executor) writeFile(path string, content []byte) error {
	abs, err := e.resolve(path)
	if err != nil {
		return err
	}

	lock := e.lockPath(abs)
	lock.Lock()
	defer lock.Unlock()

	_, statErr := os.Stat(abs)
	if err := e.reserve(os.IsNotExist(statErr), int64(len(content))); err != nil {
		return err
	}
	if e.cfg.DryRun {
		e.logger.Info("dry run: would write", zap.String("path", path), zap.Int("bytes", len(content)))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (e *Executor) applyPatch(path, patch string) error {
	abs, err := e.resolve(path)
	if err != nil {
		return err
	}

	lock := e.lockPath(abs)
	lock.Lock()
	defer lock.Unlock()

	current, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("patch target %s: %w", path, err)
	}
	patched, err := applyUnified(string(current), patch)
	if err != nil {
		return fmt.Errorf("patch %s: %w", path, err)
	}

	if err := e.reserve(false, int64(len(patched))); err != nil {
		return err
	}
	if e.cfg.DryRun {
		e.logger.Info("dry run: would patch", zap.String("path", path))
		return nil
	}
	if err := os.WriteFile(abs, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("write patched %s: %w", path, err)
	}
	return nil
}

func (e *Executor) commit(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("empty commit message")
	}
	if e.cfg.DryRun {
		e.logger.Info("dry run: would commit", zap.String("message", message))
		return nil
	}

	repo, err := git.PlainOpen(e.cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddGlob("."); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applied(result *models.ExecutionResult) int {
	n := 0
	for _, r := range result.Results {
		if r.Error == "" {
			n++
		}
	}
	return n
}
