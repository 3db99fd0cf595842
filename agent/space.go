package agent

import (
	"golang.org/x/sys/unix"
)

// diskFree 返回路径所在文件系统对非特权用户可用的字节数
func diskFree(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
