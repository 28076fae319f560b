package emulator

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmulator writes a shell script standing in for the emulator binary.
func fakeEmulator(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yuzu")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestCommand(t *testing.T) {
	cfg := config.EmulatorConfig{Path: "/opt/yuzu/yuzu", Game: "mk8.nsp", LibraryPath: "/opt/yuzu/lib"}
	cmd := Command(context.Background(), cfg)

	assert.Equal(t, []string{"/opt/yuzu/yuzu", "-g", "mk8.nsp"}, cmd.Args)
	assert.True(t, slices.Contains(cmd.Env, "LD_LIBRARY_PATH=/opt/yuzu/lib"))
}

func TestLaunchAndTerminate(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "placed")
	cfg := config.EmulatorConfig{
		Path:           fakeEmulator(t, "exec sleep 30"),
		Game:           "mk8.nsp",
		GDBAddress:     listen(t),
		StartTimeout:   5 * time.Second,
		WindowCommands: []string{"touch " + marker},
	}

	p, err := Launch(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Greater(t, p.Pid(), 0)
	assert.FileExists(t, marker)

	require.NoError(t, p.Terminate())
	require.NoError(t, p.Terminate())
	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after Terminate")
	}
}

func TestLaunch_ExitsEarly(t *testing.T) {
	cfg := config.EmulatorConfig{
		Path:         fakeEmulator(t, "exit 3"),
		GDBAddress:   freeAddr(t),
		StartTimeout: 5 * time.Second,
	}
	_, err := Launch(context.Background(), cfg, quiet())
	assert.ErrorIs(t, err, ErrExited)
}

func TestLaunch_Timeout(t *testing.T) {
	cfg := config.EmulatorConfig{
		Path:         fakeEmulator(t, "exec sleep 30"),
		GDBAddress:   freeAddr(t),
		StartTimeout: 600 * time.Millisecond,
	}
	start := time.Now()
	_, err := Launch(context.Background(), cfg, quiet())
	assert.ErrorIs(t, err, ErrStartTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLaunch_MissingBinary(t *testing.T) {
	cfg := config.EmulatorConfig{Path: filepath.Join(t.TempDir(), "missing"), GDBAddress: freeAddr(t)}
	_, err := Launch(context.Background(), cfg, quiet())
	assert.Error(t, err)
}
