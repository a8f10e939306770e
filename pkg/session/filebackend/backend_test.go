package filebackend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sesslock/pkg/session"
	"github.com/dmitrymomot/sesslock/pkg/session/filebackend"
)

const (
	testID  = "0123456789abcdef0123456789abcdef01234567"
	otherID = "89abcdef0123456789abcdef0123456789abcdef"
	name    = "sess_"
)

func openBackend(t *testing.T, dir string, opts ...filebackend.Option) *filebackend.Backend {
	t.Helper()
	opts = append([]filebackend.Option{
		filebackend.WithLockTimeout(100 * time.Millisecond),
		filebackend.WithLockRetryInterval(5 * time.Millisecond),
	}, opts...)
	b := filebackend.New(dir, opts...)
	require.NoError(t, b.Open(context.Background(), "", name))
	t.Cleanup(func() { _ = b.ReleaseLock(context.Background(), "") })
	return b
}

func sessionFile(dir, id string) string {
	return filepath.Join(dir, name+id+".php")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and seeds the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "sessions")
		b := filebackend.New(dir)
		require.NoError(t, b.Open(ctx, "", name))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

		index, err := os.ReadFile(filepath.Join(dir, "index.html"))
		require.NoError(t, err)
		assert.Empty(t, index)

		htaccess, err := os.ReadFile(filepath.Join(dir, ".htaccess"))
		require.NoError(t, err)
		assert.Equal(t, "Deny From All", string(htaccess))
	})

	t.Run("path argument overrides directory", func(t *testing.T) {
		dir := t.TempDir()
		b := filebackend.New("")
		require.NoError(t, b.Open(ctx, dir, name))
		require.NoError(t, b.Replace(ctx, testID, []byte("x")))
		require.NoError(t, b.ReleaseLock(ctx, testID))
		assert.FileExists(t, sessionFile(dir, testID))
	})

	t.Run("no directory", func(t *testing.T) {
		err := filebackend.New("").Open(ctx, "", name)
		assert.ErrorIs(t, err, session.ErrEnvironmentUnavailable)
	})

	t.Run("path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		err := filebackend.New(file).Open(ctx, "", name)
		assert.ErrorIs(t, err, session.ErrEnvironmentUnavailable)
	})
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := openBackend(t, dir)

	require.NoError(t, b.AcquireLock(ctx, testID))
	assert.FileExists(t, sessionFile(dir, testID))

	_, err := b.Fetch(ctx, testID)
	assert.ErrorIs(t, err, session.ErrRecordNotFound, "new file is not a record until written")
	assert.ErrorIs(t, b.Update(ctx, testID, []byte("x")), session.ErrRecordNotFound)
	assert.ErrorIs(t, b.Touch(ctx, testID), session.ErrRecordNotFound)

	require.NoError(t, b.Insert(ctx, testID, []byte("a=1")))
	assert.ErrorIs(t, b.Insert(ctx, testID, []byte("a=2")), session.ErrRecordExists)

	raw, err := os.ReadFile(sessionFile(dir, testID))
	require.NoError(t, err)
	assert.Equal(t, filebackend.DefaultSentinel+"a=1", string(raw))

	require.NoError(t, b.Update(ctx, testID, []byte("b")))
	raw, err = os.ReadFile(sessionFile(dir, testID))
	require.NoError(t, err)
	assert.Equal(t, filebackend.DefaultSentinel+"b", string(raw), "shorter payload truncates the file")

	rec, err := b.Fetch(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), rec.Data)
	assert.Equal(t, testID, rec.ID)
	assert.False(t, rec.UpdatedAt.IsZero())
	assert.Equal(t, []byte("b"), b.Current())

	require.NoError(t, b.ReleaseLock(ctx, testID))
	_, err = b.Fetch(ctx, testID)
	assert.ErrorIs(t, err, session.ErrRecordNotFound, "released handle is cleared")

	// a fresh scope locks lazily on fetch
	next := openBackend(t, dir)
	data, err := next.FetchData(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestLegacyFileWithoutSentinel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := openBackend(t, dir)
	require.NoError(t, os.WriteFile(sessionFile(dir, testID), []byte("plain"), 0o600))

	data, err := b.FetchData(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), data)
}

func TestCustomFraming(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := openBackend(t, dir, filebackend.WithExtension(".sess"), filebackend.WithSentinel(""))

	require.NoError(t, b.Replace(ctx, testID, []byte("raw")))
	raw, err := os.ReadFile(filepath.Join(dir, name+testID+".sess"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(raw))
}

func TestLocking(t *testing.T) {
	ctx := context.Background()

	t.Run("exclusive across backends", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		waiter := openBackend(t, dir)

		require.NoError(t, holder.AcquireLock(ctx, testID))
		require.NoError(t, holder.AcquireLock(ctx, testID), "reentrant")

		start := time.Now()
		assert.ErrorIs(t, waiter.AcquireLock(ctx, testID), session.ErrLockTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

		require.NoError(t, waiter.AcquireLock(ctx, otherID))

		require.NoError(t, holder.ReleaseLock(ctx, testID))
		require.NoError(t, holder.ReleaseLock(ctx, testID), "double release")
		assert.NoError(t, waiter.AcquireLock(ctx, testID))
	})

	t.Run("context cancellation", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		waiter := filebackend.New(dir, filebackend.WithLockRetryInterval(5*time.Millisecond))
		require.NoError(t, waiter.Open(ctx, "", name))

		require.NoError(t, holder.AcquireLock(ctx, testID))

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, waiter.AcquireLock(cctx, testID), session.ErrLockTimeout)
	})

	t.Run("waiter gets the lock once released", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		require.NoError(t, holder.Replace(ctx, testID, []byte("first")))

		done := make(chan error, 1)
		go func() {
			waiter := filebackend.New(dir,
				filebackend.WithLockTimeout(5*time.Second),
				filebackend.WithLockRetryInterval(5*time.Millisecond),
			)
			if err := waiter.Open(ctx, "", name); err != nil {
				done <- err
				return
			}
			defer waiter.ReleaseLock(ctx, testID)
			done <- waiter.AcquireLock(ctx, testID)
		}()

		time.Sleep(30 * time.Millisecond)
		require.NoError(t, holder.ReleaseLock(ctx, testID))

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter did not get the lock")
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := openBackend(t, dir)

	require.NoError(t, b.Replace(ctx, testID, []byte("x")))
	require.NoError(t, b.Delete(ctx, testID))
	assert.NoFileExists(t, sessionFile(dir, testID))

	_, err := b.Fetch(ctx, testID)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
	assert.NoError(t, b.Delete(ctx, testID), "deleting twice is fine")

	// lock was released by delete
	other := openBackend(t, dir)
	assert.NoError(t, other.AcquireLock(ctx, testID))
}

func TestFileRemovedUnderLock(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch and update report missing, replace relocks the path", func(t *testing.T) {
		dir := t.TempDir()
		b := openBackend(t, dir)

		require.NoError(t, b.Replace(ctx, testID, []byte("a=1")))
		require.NoError(t, os.Remove(sessionFile(dir, testID)))

		_, err := b.Fetch(ctx, testID)
		assert.ErrorIs(t, err, session.ErrRecordNotFound)
		assert.ErrorIs(t, b.Update(ctx, testID, []byte("b=2")), session.ErrRecordNotFound)

		require.NoError(t, b.Replace(ctx, testID, []byte("b=2")))
		raw, err := os.ReadFile(sessionFile(dir, testID))
		require.NoError(t, err)
		assert.Equal(t, filebackend.DefaultSentinel+"b=2", string(raw))

		// the new file is the one held
		other := openBackend(t, dir)
		assert.ErrorIs(t, other.AcquireLock(ctx, testID), session.ErrLockTimeout)
	})

	t.Run("store write after a sweep is not lost", func(t *testing.T) {
		dir := t.TempDir()
		store := session.New(filebackend.New(dir,
			filebackend.WithLockTimeout(100*time.Millisecond),
			filebackend.WithLockRetryInterval(5*time.Millisecond),
		))
		require.NoError(t, store.Open(ctx, "", name))
		t.Cleanup(func() { _ = store.Close(ctx) })

		_, err := store.Read(ctx, testID)
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, testID, []byte("a=1")))

		require.NoError(t, os.Remove(sessionFile(dir, testID)))
		require.NoError(t, store.Write(ctx, testID, []byte("b=2")))

		raw, err := os.ReadFile(sessionFile(dir, testID))
		require.NoError(t, err)
		assert.Equal(t, filebackend.DefaultSentinel+"b=2", string(raw))
	})

	t.Run("delete skips a path taken over by another file", func(t *testing.T) {
		dir := t.TempDir()
		b := openBackend(t, dir)
		require.NoError(t, b.Replace(ctx, testID, []byte("old")))

		path := sessionFile(dir, testID)
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.WriteFile(path, []byte("new"), 0o600))

		require.NoError(t, b.Delete(ctx, testID))
		assert.FileExists(t, path)
	})
}

// lockWaiter starts a backend waiting for the lock on testID in the background.
func lockWaiter(t *testing.T, dir string) (*filebackend.Backend, <-chan error) {
	t.Helper()
	waiter := filebackend.New(dir,
		filebackend.WithLockTimeout(5*time.Second),
		filebackend.WithLockRetryInterval(5*time.Millisecond),
	)
	require.NoError(t, waiter.Open(context.Background(), "", name))
	t.Cleanup(func() { _ = waiter.ReleaseLock(context.Background(), "") })

	done := make(chan error, 1)
	go func() {
		done <- waiter.AcquireLock(context.Background(), testID)
	}()
	// let the waiter open the file and start polling
	time.Sleep(30 * time.Millisecond)
	return waiter, done
}

func awaitLock(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not get the lock")
	}
}

func TestConcurrentRequests(t *testing.T) {
	ctx := context.Background()

	t.Run("waiter after delete sees no record", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		require.NoError(t, holder.Replace(ctx, testID, []byte("secret")))

		waiter, done := lockWaiter(t, dir)
		require.NoError(t, holder.Delete(ctx, testID))
		awaitLock(t, done)

		_, err := waiter.Fetch(ctx, testID)
		assert.ErrorIs(t, err, session.ErrRecordNotFound)

		require.NoError(t, waiter.Replace(ctx, testID, []byte("fresh")))
		raw, err := os.ReadFile(sessionFile(dir, testID))
		require.NoError(t, err)
		assert.Equal(t, filebackend.DefaultSentinel+"fresh", string(raw))
	})

	t.Run("waiter sees a record written while it waited", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		require.NoError(t, holder.AcquireLock(ctx, testID))

		waiter, done := lockWaiter(t, dir)
		require.NoError(t, holder.Insert(ctx, testID, []byte("a=1")))
		require.NoError(t, holder.ReleaseLock(ctx, testID))
		awaitLock(t, done)

		data, err := waiter.FetchData(ctx, testID)
		require.NoError(t, err)
		assert.Equal(t, []byte("a=1"), data)
		assert.ErrorIs(t, waiter.Insert(ctx, testID, []byte("b=2")), session.ErrRecordExists)
		require.NoError(t, waiter.Update(ctx, testID, []byte("b=2")))
	})

	t.Run("relocking after delete starts from an empty file", func(t *testing.T) {
		dir := t.TempDir()
		holder := openBackend(t, dir)
		require.NoError(t, holder.Replace(ctx, testID, []byte("x")))
		require.NoError(t, holder.Delete(ctx, testID))

		b := openBackend(t, dir)
		require.NoError(t, b.AcquireLock(ctx, testID))
		_, err := b.Fetch(ctx, testID)
		assert.ErrorIs(t, err, session.ErrRecordNotFound, "empty file left by a lock is not a record")
	})
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	b := openBackend(t, dir, filebackend.WithClock(func() time.Time { return at }))

	require.NoError(t, b.Replace(ctx, testID, []byte("x")))
	require.NoError(t, b.Touch(ctx, testID))

	info, err := os.Stat(sessionFile(dir, testID))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(at))

	assert.ErrorIs(t, b.Touch(ctx, otherID), session.ErrRecordNotFound)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	maxAge := 24 * time.Minute

	dir := t.TempDir()
	b := openBackend(t, dir, filebackend.WithClock(func() time.Time { return now }))

	write := func(file string, age time.Duration) string {
		path := filepath.Join(dir, file)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	expired := write(name+testID+".php", maxAge+time.Second)
	boundary := write(name+otherID+".php", maxAge)
	fresh := write(name+"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.php", time.Second)
	otherName := write("other_"+testID+".php", time.Hour)
	otherExt := write(name+testID+".txt", time.Hour)
	badID := write(name+"XYZ.php", time.Hour)
	require.NoError(t, os.Mkdir(filepath.Join(dir, name+"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.php"), 0o700))

	require.NoError(t, b.DeleteExpired(ctx, maxAge))

	assert.NoFileExists(t, expired)
	assert.FileExists(t, boundary, "age equal to max age is kept")
	assert.FileExists(t, fresh)
	assert.FileExists(t, otherName)
	assert.FileExists(t, otherExt)
	assert.FileExists(t, badID)
	assert.DirExists(t, filepath.Join(dir, name+"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.php"))
	assert.FileExists(t, filepath.Join(dir, ".htaccess"))

	t.Run("unreadable directory", func(t *testing.T) {
		gone := filepath.Join(t.TempDir(), "sessions")
		b := openBackend(t, gone)
		require.NoError(t, os.RemoveAll(gone))
		assert.ErrorIs(t, b.DeleteExpired(ctx, maxAge), session.ErrIOFailure)
	})
}

func TestWithStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	factory := filebackend.Factory(dir,
		filebackend.WithLockTimeout(100*time.Millisecond),
		filebackend.WithLockRetryInterval(5*time.Millisecond),
	)

	first := session.New(factory())
	require.NoError(t, first.Open(ctx, "", name))
	data, err := first.Read(ctx, testID)
	require.NoError(t, err)
	assert.Empty(t, data)
	require.NoError(t, first.Write(ctx, testID, []byte("a=1")))

	// concurrent request on the same id is locked out and fails open
	second := session.New(factory())
	require.NoError(t, second.Open(ctx, "", name))
	data, err = second.Read(ctx, testID)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.ErrorIs(t, second.Write(ctx, testID, []byte("b=2")), session.ErrNotLocked)
	require.NoError(t, second.Close(ctx))

	require.NoError(t, first.Close(ctx))

	third := session.New(factory())
	require.NoError(t, third.Open(ctx, "", name))
	data, err = third.Read(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a=1"), data)

	require.NoError(t, third.Destroy(ctx, testID))
	assert.NoFileExists(t, sessionFile(dir, testID))
}
