package payloads

import (
	"math/rand"
	"path/filepath"
	"testing"

	"authfuzz/pkg/testutil"

	"github.com/stretchr/testify/assert"
)

func TestLoadWordfileSkipsCommentsAndBlanks(t *testing.T) {
	path := testutil.CreateTestFile(t, t.TempDir(), "w.txt", "# header\n\nadmin\n  secret  \n#x\n")
	assert.Equal(t, []string{"admin", "secret"}, LoadWordfile(path))
	assert.Nil(t, LoadWordfile(filepath.Join(t.TempDir(), "nope.txt")))
}

func TestGatherFromDirOrderAndLimit(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "b/list.txt", "b1\nb2\n")
	testutil.CreateTestFile(t, dir, "a/list.txt", "a1\na2\n")
	testutil.CreateTestFile(t, dir, "a/ignored.csv", "c1\n")

	assert.Equal(t, []string{"a1", "a2", "b1", "b2"}, GatherFromDir(dir, []string{"*.txt"}, 10))
	assert.Equal(t, []string{"a1", "a2", "b1"}, GatherFromDir(dir, []string{"*.txt"}, 3))
	assert.Len(t, GatherFromDir(dir, nil, 10), 5)
	assert.Nil(t, GatherFromDir(filepath.Join(dir, "missing"), nil, 10))
}

func TestPasswordsFromSecLists(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTestFile(t, root, "SecLists/Passwords/Common-Credentials/top.txt", "123456\npassword\n123456\n")

	got := Passwords(Roots{SecLists: filepath.Join(root, "SecLists")}, 10)
	assert.Equal(t, []string{"123456", "password"}, got)
}

func TestFallbacks(t *testing.T) {
	empty := Roots{SecLists: t.TempDir(), Payloads: t.TempDir()}
	assert.Equal(t, builtinPasswords, Passwords(empty, 100))
	assert.Equal(t, builtinTokens, JWTTokens(empty, 100))
	assert.Len(t, Passwords(empty, 2), 2)
}

func TestSample(t *testing.T) {
	list := []string{"a", "b", "c", "d"}
	assert.Equal(t, list, Sample(list, 10, nil))

	got := Sample(list, 2, rand.New(rand.NewSource(1)))
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b", "c", "d"}, list)
}
