//go:build windows

package repofile

import (
	"io"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// hardLinkMinBytes and maxHardLinkCount are NTFS's documented dedup
// thresholds: files under 513 bytes occupy less space inline in the MFT
// than a hard link's directory-entry overhead would save, and 1023 is
// NTFS's hard link count ceiling.
const (
	hardLinkMinBytes = 513
	maxHardLinkCount = 1023
)

// sourceLock holds a deny-write share-mode handle on a source file while it
// is hashed and imported.
type sourceLock struct {
	file *os.File
}

// lockSource opens path with FILE_SHARE_READ only (denying concurrent
// writers), retrying up to 10 times at 10ms intervals per spec.
func lockSource(path string) (*sourceLock, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	var handle windows.Handle
	var openErr error
	for attempt := 0; attempt < 10; attempt++ {
		handle, openErr = windows.CreateFile(
			pathPtr,
			windows.GENERIC_READ,
			windows.FILE_SHARE_READ,
			nil,
			windows.OPEN_EXISTING,
			windows.FILE_ATTRIBUTE_NORMAL,
			0,
		)
		if openErr == nil {
			return &sourceLock{file: os.NewFile(uintptr(handle), path)}, nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return nil, openErr
}

func (l *sourceLock) reader() io.Reader {
	return l.file
}

func (l *sourceLock) release() {
	l.file.Close()
}

func fileInformation(path string) (windows.ByHandleFileInformation, error) {
	var info windows.ByHandleFileInformation

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return info, err
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return info, err
	}
	defer windows.CloseHandle(handle)

	err = windows.GetFileInformationByHandle(handle, &info)
	return info, err
}

// hardLinkCount reports the current number of directory entries referring
// to path's underlying file record.
func hardLinkCount(path string) (int64, error) {
	info, err := fileInformation(path)
	if err != nil {
		return 0, err
	}
	return int64(info.NumberOfLinks), nil
}

// fileSystemIndex returns path's NTFS file index, the same identifier two
// hard links to one file record share.
func fileSystemIndex(path string) (int64, error) {
	info, err := fileInformation(path)
	if err != nil {
		return 0, err
	}
	return int64(info.FileIndexHigh)<<32 + int64(info.FileIndexLow), nil
}
