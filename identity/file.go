// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package identity

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type fileSourceOptions struct {
	logHandler slog.Handler
}

// FileSourceOption configures a FileSource.
type FileSourceOption func(*fileSourceOptions)

// FileSourceLogHandler configures the underlying slog.Handler.
func FileSourceLogHandler(h slog.Handler) FileSourceOption {
	return func(o *fileSourceOptions) {
		o.logHandler = h
	}
}

// FileSource watches a certificate and key file pair on disk and
// emits an update whenever either file changes. This is the usual
// collaborator for certificate renewal flows which rewrite files in
// place, such as Let's Encrypt.
type FileSource struct {
	certFile string
	keyFile  string

	log *slog.Logger
	ch  chan Loader
}

// NewFileSource returns a FileSource for the given file pair. Watching
// does not begin until Watch is called.
func NewFileSource(certFile, keyFile string, opts ...FileSourceOption) *FileSource {
	fo := &fileSourceOptions{
		logHandler: noopLogHandler{},
	}
	for _, opt := range opts {
		opt(fo)
	}

	return &FileSource{
		certFile: certFile,
		keyFile:  keyFile,
		log:      slog.New(fo.logHandler),
		ch:       make(chan Loader, 8),
	}
}

// Updates implements the Source interface.
func (s *FileSource) Updates() <-chan Loader {
	return s.ch
}

// Watch emits one initial update and then watches both files until the
// context is cancelled. The watch is placed on the parent directories
// so that atomic renames, the common way certificates are rotated, are
// observed as well.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(s.certFile): {},
		filepath.Dir(s.keyFile):  {},
	}
	for dir := range dirs {
		err = watcher.Add(dir)
		if err != nil {
			return err
		}
	}

	s.send()

	names := map[string]struct{}{
		filepath.Clean(s.certFile): {},
		filepath.Clean(s.keyFile):  {},
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, watched := names[filepath.Clean(event.Name)]; !watched {
				continue
			}
			s.log.InfoContext(ctx, "identity file changed", slog.String("file", event.Name))
			s.send()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.ErrorContext(ctx, "identity file watch failed", slog.Any("error", werr))
		}
	}
}

func (s *FileSource) send() {
	certFile, keyFile := s.certFile, s.keyFile
	loader := LoaderFunc(func() (Identity, error) {
		return FromFiles(certFile, keyFile)
	})

	// The consumer drains to latest so a full buffer means there is
	// already a newer update than anything it has observed.
	select {
	case s.ch <- loader:
	default:
	}
}

type noopLogHandler struct{}

func (noopLogHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (noopLogHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopLogHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopLogHandler) WithGroup(string) slog.Handler           { return h }
