package access

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileSource はファイルから許可リストを読み込み、変更を監視して再読み込みする。
// 読み込んだリストはアトミックに差し替えるため、参照側はロック不要。
type FileSource struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[AllowList]
}

// NewFileSource はFileSourceを生成し、初回読み込みを行う。
// 初回読み込みに失敗した場合は空の許可リスト（全拒否）で開始し、エラーを返す。
// エラー時もSourceとしては利用可能で、ファイルが作成されれば監視で反映される。
func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileSource{path: path, logger: logger}
	empty := AllowList{}
	s.current.Store(&empty)

	if err := s.Reload(); err != nil {
		return s, err
	}
	return s, nil
}

// AllowList は現在の許可リストを返す。ファイルが存在しない間は空になる。
func (s *FileSource) AllowList() AllowList {
	return *s.current.Load()
}

// Reload はファイルを読み直して許可リストを差し替える。
// ファイルが存在しない場合は空のリスト（全拒否）に差し替える。
// それ以外の読み込み失敗では直前のリストを維持する。
func (s *FileSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := AllowList{}
		s.current.Store(&empty)
		s.logger.Warn("allow-list file not found, denying all sign-ins",
			slog.String("path", s.path),
		)
		return fmt.Errorf("allow-list file removed: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to read allow-list file: %w", err)
	}
	list := ParseAllowList(string(data))
	s.current.Store(&list)

	s.logger.Info("allow-list loaded",
		slog.String("path", s.path),
		slog.Int("entries", list.Len()),
	)
	return nil
}

// Watch はファイルの変更を監視し、変更のたびにReloadする。
// エディタによる置き換え保存に対応するため、親ディレクトリを監視する。
// ctxがキャンセルされるまでブロックする。
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("allow-list reload failed",
					slog.String("path", s.path),
					slog.String("error", err.Error()),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("allow-list watcher error", slog.String("error", err.Error()))
		}
	}
}
