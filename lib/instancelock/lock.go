// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package instancelock keeps a second agent from serving the same
// installation. The lock file lives beside the settings file.
package instancelock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("instancelock: held by another process")

// Lock is an exclusive advisory lock on a file. The holder's pid is
// written into the file for diagnostics.
type Lock struct {
	file *os.File
}

// Acquire takes the lock at path without blocking, creating the file
// if needed. The lock is released by Release or when the process
// exits.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("instancelock: opening %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(file)
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s (pid %s)", ErrHeld, path, holder)
		}
		return nil, fmt.Errorf("instancelock: locking %s: %w", path, err)
	}
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{file: file}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	return errors.Join(unlockErr, file.Close())
}

func readHolder(file *os.File) string {
	buffer := make([]byte, 32)
	n, _ := file.ReadAt(buffer, 0)
	if holder := strings.TrimSpace(string(buffer[:n])); holder != "" {
		return holder
	}
	return "unknown"
}
