// Copyright 2021 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fs

import (
	"errors"
	"syscall"
)

// The error taxonomy of the core. Every operation reports failures as one
// of these sentinels (possibly wrapped with context); anything else that
// escapes an operation is a backend fault and surfaces as EIO.
var (
	ErrNotFound         = errors.New("no such file or directory")
	ErrNotADirectory    = errors.New("not a directory")
	ErrPermissionDenied = errors.New("permission denied")
	ErrFileExists       = errors.New("file exists")
	ErrNotEmpty         = errors.New("directory not empty")
	ErrIsADirectory     = errors.New("is a directory")
	ErrBadDescriptor    = errors.New("bad file descriptor")
	ErrNameTooLong      = errors.New("name too long")
	ErrRange            = errors.New("result too large for buffer")
	ErrNoData           = errors.New("no data available")
)

// AsErrno maps an error chain from a core operation to the POSIX errno it
// must surface as. The mapping is deterministic; unknown errors, including
// backend store/append failures, become EIO.
func AsErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrPermissionDenied):
		return syscall.EACCES
	case errors.Is(err, ErrFileExists):
		return syscall.EEXIST
	case errors.Is(err, ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrBadDescriptor):
		return syscall.EBADF
	case errors.Is(err, ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, ErrRange):
		return syscall.ERANGE
	case errors.Is(err, ErrNoData):
		return syscall.ENODATA
	default:
		return syscall.EIO
	}
}
