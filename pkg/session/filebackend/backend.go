package filebackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

var errWouldBlock = errors.New("filebackend: lock held elsewhere")

type handleState int

const (
	handleUnset handleState = iota
	handleCleared
	handleOpen
)

// Backend implements session.Backend with one locked file per session.
type Backend struct {
	dir           string
	ext           string
	sentinel      []byte
	lockTimeout   time.Duration
	retryInterval time.Duration
	now           func() time.Time
	log           *slog.Logger

	name    string
	id      string
	file    *os.File
	state   handleState
	isNew   bool
	current []byte
}

var _ session.Backend = (*Backend)(nil)

// New creates a backend storing files under dir. Open may override dir.
func New(dir string, opts ...Option) *Backend {
	b := &Backend{
		dir:           dir,
		ext:           DefaultExtension,
		sentinel:      []byte(DefaultSentinel),
		lockTimeout:   session.DefaultLockTimeout,
		retryInterval: session.DefaultLockRetryInterval,
		now:           time.Now,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Backend("file"))
	return b
}

// Factory returns a BackendFactory creating a fresh Backend per request.
func Factory(dir string, opts ...Option) session.BackendFactory {
	return func() session.Backend {
		return New(dir, opts...)
	}
}

// Open ensures the save directory exists and is writable.
// A non-empty path overrides the constructor directory.
func (b *Backend) Open(ctx context.Context, path, name string) error {
	if path != "" {
		b.dir = path
	}
	if b.dir == "" {
		return fmt.Errorf("%w: no save directory", session.ErrEnvironmentUnavailable)
	}

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}

	probe, err := os.CreateTemp(b.dir, ".probe-*")
	if err != nil {
		return errors.Join(session.ErrEnvironmentUnavailable, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	b.name = name
	b.seed(ctx, "index.html", "")
	b.seed(ctx, ".htaccess", "Deny From All")
	return nil
}

// seed writes a protective file when missing. Failures are logged only.
func (b *Backend) seed(ctx context.Context, file, content string) {
	path := filepath.Join(b.dir, file)
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		b.log.WarnContext(ctx, "failed to seed session directory", slog.String("file", file), logger.Error(err))
	}
}

// AcquireLock opens (creating if needed) the session file and polls for an
// exclusive lock until the timeout or ctx ends. A lock granted on a file that
// was unlinked or replaced during the wait is dropped and the path reopened.
func (b *Backend) AcquireLock(ctx context.Context, id string) error {
	if b.state == handleOpen {
		if b.id == id {
			return nil
		}
		if err := b.closeHandle(); err != nil {
			b.log.WarnContext(ctx, "failed to release previous session file", logger.SessionID(b.id), logger.Error(err))
		}
	}

	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	path := b.path(id)
	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return errors.Join(session.ErrIOFailure, err)
		}

		if err := waitLock(ctx, f, timer, ticker); err != nil {
			f.Close()
			return err
		}

		info, same, err := linked(f, path)
		if err != nil {
			discard(f)
			return errors.Join(session.ErrIOFailure, err)
		}
		if same {
			b.file = f
			b.id = id
			b.isNew = info.Size() == 0
			b.state = handleOpen
			b.current = nil
			return nil
		}

		b.log.DebugContext(ctx, "session file replaced while waiting for lock", logger.SessionID(id))
		discard(f)

		select {
		case <-ticker.C:
		case <-timer.C:
			return session.ErrLockTimeout
		case <-ctx.Done():
			return errors.Join(session.ErrLockTimeout, ctx.Err())
		}
	}
}

func waitLock(ctx context.Context, f *os.File, timer *time.Timer, ticker *time.Ticker) error {
	for {
		err := tryLock(f)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errWouldBlock) {
			return errors.Join(session.ErrIOFailure, err)
		}

		select {
		case <-ticker.C:
		case <-timer.C:
			return session.ErrLockTimeout
		case <-ctx.Done():
			return errors.Join(session.ErrLockTimeout, ctx.Err())
		}
	}
}

// linked reports whether f is still the file at path.
func linked(f *os.File, path string) (fs.FileInfo, bool, error) {
	held, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	onDisk, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return held, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return held, os.SameFile(held, onDisk), nil
}

// ReleaseLock unlocks and closes the session file.
func (b *Backend) ReleaseLock(_ context.Context, _ string) error {
	if b.state != handleOpen {
		return nil
	}
	return b.closeHandle()
}

// Fetch reads the session file, locking it first when no handle was opened yet.
func (b *Backend) Fetch(ctx context.Context, id string) (*session.Record, error) {
	if err := b.ensureHandle(ctx, id); err != nil {
		return nil, err
	}
	if b.isNew {
		return nil, session.ErrRecordNotFound
	}
	if ok, err := b.stillLinked(); err != nil || !ok {
		return nil, orNotFound(err)
	}

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	raw, err := io.ReadAll(b.file)
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}
	info, err := b.file.Stat()
	if err != nil {
		return nil, errors.Join(session.ErrIOFailure, err)
	}

	data := unframe(b.sentinel, raw)
	b.current = bytes.Clone(data)
	return &session.Record{ID: id, Data: data, UpdatedAt: info.ModTime()}, nil
}

// FetchData returns the payload of the session file.
func (b *Backend) FetchData(ctx context.Context, id string) ([]byte, error) {
	rec, err := b.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Insert writes a session file that has not been written before.
func (b *Backend) Insert(ctx context.Context, id string, data []byte) error {
	if err := b.ensureLinkedHandle(ctx, id); err != nil {
		return err
	}
	if !b.isNew {
		return session.ErrRecordExists
	}
	return b.write(data)
}

// Update overwrites an existing session file.
func (b *Backend) Update(ctx context.Context, id string, data []byte) error {
	if err := b.ensureHandle(ctx, id); err != nil {
		return err
	}
	if b.isNew {
		return session.ErrRecordNotFound
	}
	if ok, err := b.stillLinked(); err != nil || !ok {
		return orNotFound(err)
	}
	return b.write(data)
}

// Replace writes the session file unconditionally, relocking the path when
// the held file was removed from under the lock.
func (b *Backend) Replace(ctx context.Context, id string, data []byte) error {
	if err := b.ensureLinkedHandle(ctx, id); err != nil {
		return err
	}
	return b.write(data)
}

// Touch sets the file's modification time to now.
func (b *Backend) Touch(ctx context.Context, id string) error {
	if b.state == handleOpen && b.id == id && b.isNew {
		return session.ErrRecordNotFound
	}
	now := b.now()
	if err := os.Chtimes(b.path(id), now, now); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return session.ErrRecordNotFound
		}
		return errors.Join(session.ErrIOFailure, err)
	}
	return nil
}

// Delete removes the session file, then unlocks and closes it. A held file
// that no longer sits at the path is only closed.
func (b *Backend) Delete(_ context.Context, id string) error {
	holding := b.state == handleOpen && b.id == id
	if b.state == handleUnset {
		b.state = handleCleared
	}

	remove := true
	if holding {
		ok, err := b.stillLinked()
		if err != nil {
			return errors.Join(session.ErrIOFailure, err, b.closeHandle())
		}
		remove = ok
	}

	var removeErr error
	if remove {
		if err := os.Remove(b.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			removeErr = err
		}
	}

	var closeErr error
	if holding {
		closeErr = b.closeHandle()
		b.current = nil
	}

	if removeErr != nil || closeErr != nil {
		return errors.Join(session.ErrIOFailure, removeErr, closeErr)
	}
	return nil
}

// DeleteExpired removes session files of this name older than maxAge.
// A failed removal does not stop the sweep; all failures are returned together.
func (b *Backend) DeleteExpired(ctx context.Context, maxAge time.Duration) error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}

	pattern := b.filePattern()
	now := b.now()

	var errs []error
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	b.log.DebugContext(ctx, "expired sessions removed", slog.Int("removed", removed))
	if len(errs) > 0 {
		return errors.Join(append([]error{session.ErrIOFailure}, errs...)...)
	}
	return nil
}

// Current returns the payload last read or written through this backend.
func (b *Backend) Current() []byte {
	return b.current
}

func (b *Backend) ensureHandle(ctx context.Context, id string) error {
	switch {
	case b.state == handleCleared:
		return session.ErrRecordNotFound
	case b.state == handleUnset, b.id != id:
		return b.AcquireLock(ctx, id)
	}
	return nil
}

// ensureLinkedHandle is ensureHandle that also reopens and relocks the path
// when the held file was unlinked or replaced.
func (b *Backend) ensureLinkedHandle(ctx context.Context, id string) error {
	if b.state == handleCleared {
		return session.ErrRecordNotFound
	}
	if b.state == handleOpen && b.id == id {
		ok, err := b.stillLinked()
		if err != nil {
			return errors.Join(session.ErrIOFailure, err)
		}
		if ok {
			return nil
		}
		b.log.WarnContext(ctx, "session file removed while locked, relocking", logger.SessionID(id))
		if err := b.closeHandle(); err != nil {
			b.log.WarnContext(ctx, "failed to close unlinked session file", logger.SessionID(id), logger.Error(err))
		}
	}
	return b.AcquireLock(ctx, id)
}

func (b *Backend) stillLinked() (bool, error) {
	_, ok, err := linked(b.file, b.path(b.id))
	return ok, err
}

func orNotFound(err error) error {
	if err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	return session.ErrRecordNotFound
}

func (b *Backend) write(data []byte) error {
	if err := b.file.Truncate(0); err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	if _, err := b.file.WriteAt(frame(b.sentinel, data), 0); err != nil {
		return errors.Join(session.ErrIOFailure, err)
	}
	b.isNew = false
	b.current = bytes.Clone(data)
	return nil
}

func (b *Backend) closeHandle() error {
	f := b.file
	b.file = nil
	b.state = handleCleared
	b.isNew = false
	if f == nil {
		return nil
	}
	return errors.Join(unlock(f), f.Close())
}

// discard drops a lock that will not be used.
func discard(f *os.File) {
	_ = unlock(f)
	_ = f.Close()
}

func (b *Backend) path(id string) string {
	return filepath.Join(b.dir, b.name+id+"."+b.ext)
}

func (b *Backend) filePattern() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(b.name) + `[0-9a-f]{40}\.` + regexp.QuoteMeta(b.ext) + `$`)
}
