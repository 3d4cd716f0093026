// Package console detects whether padrelay was started from a terminal and
// installs a Ctrl+C handler that keeps working once SDL owns the console.
package console

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procGetConsoleWindow      = kernel32.NewProc("GetConsoleWindow")
	procAllocConsole          = kernel32.NewProc("AllocConsole")
	procFreeConsole           = kernel32.NewProc("FreeConsole")
	procSetConsoleCtrlHandler = kernel32.NewProc("SetConsoleCtrlHandler")
)

// IsRunningFromConsole reports whether the program has a terminal to run the
// shell in. A double-clicked build (parent explorer.exe) has none: an
// auto-created console window is freed. A GUI build started from a terminal
// gets a console of its own with the std streams redirected to it.
func IsRunningFromConsole() bool {
	fromExplorer := isLaunchedFromExplorer()

	if hasConsoleWindow() {
		if fromExplorer {
			procFreeConsole.Call()
			return false
		}
		return true
	}
	if fromExplorer {
		return false
	}

	// AllocConsole instead of AttachConsole: a shared parent console mixes
	// the parent's input with the shell's.
	procAllocConsole.Call()
	redirectStdStreams()
	return true
}

func hasConsoleWindow() bool {
	hwnd, _, _ := procGetConsoleWindow.Call()
	return hwnd != 0
}

// redirectStdStreams points os.Std* at a freshly allocated console; they
// were bound at startup.
func redirectStdStreams() {
	stdout, err := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE)
	if err != nil || stdout == 0 {
		return
	}
	stderr, err := windows.GetStdHandle(windows.STD_ERROR_HANDLE)
	if err != nil || stderr == 0 {
		return
	}
	os.Stdout = os.NewFile(uintptr(stdout), "/dev/stdout")
	os.Stderr = os.NewFile(uintptr(stderr), "/dev/stderr")
	if stdin, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE); err == nil && stdin != 0 {
		os.Stdin = os.NewFile(uintptr(stdin), "/dev/stdin")
	}
}

func isLaunchedFromExplorer() bool {
	parent := parentProcessID(uint32(os.Getpid()))
	if parent == 0 {
		return false
	}
	return strings.EqualFold(filepath.Base(processImageName(parent)), "explorer.exe")
}

func parentProcessID(pid uint32) uint32 {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		if entry.ProcessID == pid {
			return entry.ParentProcessID
		}
	}
	return 0
}

func processImageName(pid uint32) string {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}

var (
	handlerOnce     sync.Once
	handlerCallback uintptr
	handlerClose    sync.Once
	handlerShutdown chan struct{}
)

// SetupConsoleHandler closes shutdown on Ctrl+C or Ctrl+Break. Go's
// os.Interrupt delivery is unreliable while SDL holds a locked OS thread.
//
// SDL replaces console handlers when it initializes, so the returned
// function re-registers the handler and must be called after opening an SDL
// device.
func SetupConsoleHandler(shutdown chan struct{}, logger *zerolog.Logger) func() {
	handlerOnce.Do(func() {
		handlerShutdown = shutdown
		handlerCallback = windows.NewCallback(func(ctrlType uint32) uintptr {
			if ctrlType == windows.CTRL_C_EVENT || ctrlType == windows.CTRL_BREAK_EVENT {
				handlerClose.Do(func() { close(handlerShutdown) })
				return 1
			}
			return 0
		})
	})

	register := func() {
		if ret, _, err := procSetConsoleCtrlHandler.Call(handlerCallback, 1); ret == 0 {
			logger.Warn().Err(err).Msg("Failed to set console control handler")
		}
	}
	register()
	return register
}
