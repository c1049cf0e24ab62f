package consts

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Consts_Match_Os(t *testing.T) {
	assert.Equal(t, int64(os.O_RDWR), int64(O_RDWR))
	assert.Equal(t, int64(os.O_RDONLY), int64(O_RDONLY))
	assert.Equal(t, int64(os.O_WRONLY), int64(O_WRONLY))
	assert.Equal(t, int64(os.O_CREATE), int64(O_CREAT))
	assert.Equal(t, int64(os.O_TRUNC), int64(O_TRUNC))
	assert.Equal(t, int64(os.O_APPEND), int64(O_APPEND))
	assert.Equal(t, int64(os.O_EXCL), int64(O_EXCL))

	assert.Equal(t, int64(syscall.S_IFREG), int64(S_IFREG))
	assert.Equal(t, int64(syscall.S_IFDIR), int64(S_IFDIR))
	assert.Equal(t, -int32(syscall.ENOENT), ENOENT)
	assert.False(t, IS_WINDOWS)
	assert.Equal(t, "/", Sep())
}

func Test_Consts_Table(t *testing.T) {
	tbl := Table()
	for _, k := range []string{
		"O_RDWR", "O_RDONLY", "O_WRONLY", "O_CREAT", "O_TRUNC", "O_APPEND",
		"S_IFMT", "S_IFREG", "S_IFDIR", "S_IFCHR", "S_IFLNK", "S_IFBLK", "S_IFIFO", "S_IFSOCK",
		"ENOENT", "IS_WINDOWS",
	} {
		_, ok := tbl[k]
		assert.True(t, ok, k+" is exported")
	}
	assert.Equal(t, int64(-2), tbl["ENOENT"])
	assert.Equal(t, int64(0), tbl["IS_WINDOWS"])

	// file type bits are distinct values under S_IFMT
	seen := map[int64]string{}
	for _, k := range []string{"S_IFREG", "S_IFDIR", "S_IFCHR", "S_IFLNK", "S_IFBLK", "S_IFIFO", "S_IFSOCK"} {
		v := tbl[k]
		assert.Equal(t, v, v&tbl["S_IFMT"], k)
		_, dup := seen[v]
		assert.False(t, dup, k)
		seen[v] = k
	}
}
