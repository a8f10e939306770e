// Package filebackend stores each session in its own file and serialises
// access with an exclusive advisory lock on that file (flock on unix,
// LockFileEx on windows).
//
// Files are named "<name><id>.<ext>" inside the save directory. Every file
// starts with a sentinel prefix (by default "<?php exit;?>") so that a
// misconfigured web server executes nothing when a session file is requested
// directly. The directory is seeded with an empty index.html and a
// "Deny From All" .htaccess for the same reason.
//
// A Backend holds at most one open file handle and is meant to serve a single
// request. Use Factory to plug it into session.Middleware:
//
//	mw := session.Middleware(filebackend.Factory("/var/lib/sessions",
//		filebackend.WithLockTimeout(30*time.Second),
//	))
package filebackend
