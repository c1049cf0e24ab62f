package util_test

import (
	c "tinyfs/internal"
	"tinyfs/internal/util"

	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_PrintBytes(t *testing.T) {
	var b bytes.Buffer
	raw := make([]byte, 40)
	raw[0x21] = 0xfe
	util.PrintBytes(&b, raw)

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "+0000 | "))
	assert.Contains(t, lines[3], "+0020 | 00fe")
}

func Test_PrettyPrintRecord(t *testing.T) {
	raw := make([]byte, 2*c.LEN_U64)
	c.Bin.PutUint64(raw[c.LEN_U64:], 0x1a4)
	out := util.PrettyPrintRecord(raw, []string{"dev", "mode"})
	assert.Contains(t, out, "┃ 0x0008 ┃ mode        ┃ 0x00000000000001a4 ┃")
	assert.Equal(t, 6, strings.Count(out, "\n"))
}
