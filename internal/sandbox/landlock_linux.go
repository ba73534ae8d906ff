//go:build linux

package sandbox

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock filesystem access-right bits, from the kernel's
// include/uapi/linux/landlock.h (ABI version 1).
const (
	landlockAccessFSExecute    uint64 = 1 << 0
	landlockAccessFSWriteFile  uint64 = 1 << 1
	landlockAccessFSReadFile   uint64 = 1 << 2
	landlockAccessFSReadDir    uint64 = 1 << 3
	landlockAccessFSRemoveDir  uint64 = 1 << 4
	landlockAccessFSRemoveFile uint64 = 1 << 5
	landlockAccessFSMakeChar   uint64 = 1 << 6
	landlockAccessFSMakeDir    uint64 = 1 << 7
	landlockAccessFSMakeReg    uint64 = 1 << 8
	landlockAccessFSMakeSock   uint64 = 1 << 9
	landlockAccessFSMakeFifo   uint64 = 1 << 10
	landlockAccessFSMakeBlock  uint64 = 1 << 11
	landlockAccessFSMakeSym    uint64 = 1 << 12
)

const landlockAccessFSReadOnly = landlockAccessFSExecute | landlockAccessFSReadFile | landlockAccessFSReadDir

const landlockAccessFSReadWrite = landlockAccessFSReadOnly |
	landlockAccessFSWriteFile | landlockAccessFSRemoveDir | landlockAccessFSRemoveFile |
	landlockAccessFSMakeChar | landlockAccessFSMakeDir | landlockAccessFSMakeReg |
	landlockAccessFSMakeSock | landlockAccessFSMakeFifo | landlockAccessFSMakeBlock | landlockAccessFSMakeSym

const landlockRulePathBeneath = 1

// applyLandlock restricts the calling process to reading the directory
// containing req.WasmPath, then calls landlock_restrict_self so the
// restriction can never be lifted for the rest of the process's life. No
// other path is granted, so the child has no writable directory (the
// Request carries no temp dir).
//
// It degrades gracefully: a kernel without Landlock support, or one too
// old for the ABI version used here, leaves the process unrestricted
// rather than failing the invocation — Landlock is defense in depth on
// top of the WASM sandbox, not the only isolation layer.
func applyLandlock(req Request) error {
	rulesetFD, err := landlockCreateRuleset(landlockAccessFSReadWrite)
	if err != nil {
		return nil
	}
	defer unix.Close(rulesetFD)

	if dir := filepath.Dir(req.WasmPath); dir != "" && dir != "." {
		if err := landlockAddPathRule(rulesetFD, dir, landlockAccessFSReadOnly); err != nil {
			return fmt.Errorf("sandbox: add landlock rule for %s: %w", dir, err)
		}
	}

	if err := landlockRestrictSelf(rulesetFD); err != nil {
		return fmt.Errorf("sandbox: landlock restrict self: %w", err)
	}
	return nil
}

// landlockCreateRuleset packs a landlock_ruleset_attr { u64 handled_access_fs; u64 handled_access_net; }
// and issues landlock_create_ruleset(2).
func landlockCreateRuleset(handledAccessFS uint64) (int, error) {
	var attr [16]byte
	binary.LittleEndian.PutUint64(attr[0:8], handledAccessFS)
	binary.LittleEndian.PutUint64(attr[8:16], 0)

	fd, _, errno := unix.Syscall(unix.SYS_LANDLOCK_CREATE_RULESET, uintptr(unsafe.Pointer(&attr)), uintptr(len(attr)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(fd), nil
}

// landlockAddPathRule opens path O_PATH and packs a
// landlock_path_beneath_attr { u64 allowed_access; s32 parent_fd; } __attribute__((packed)),
// then issues landlock_add_rule(2) for LANDLOCK_RULE_PATH_BENEATH.
func landlockAddPathRule(rulesetFD int, path string, allowedAccess uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	var attr [12]byte
	binary.LittleEndian.PutUint64(attr[0:8], allowedAccess)
	binary.LittleEndian.PutUint32(attr[8:12], uint32(fd))

	_, _, errno := unix.Syscall6(unix.SYS_LANDLOCK_ADD_RULE,
		uintptr(rulesetFD), landlockRulePathBeneath, uintptr(unsafe.Pointer(&attr)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func landlockRestrictSelf(rulesetFD int) error {
	_, _, errno := unix.Syscall(unix.SYS_LANDLOCK_RESTRICT_SELF, uintptr(rulesetFD), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
