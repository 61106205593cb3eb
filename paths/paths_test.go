package paths

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/stretchr/testify/assert"
)

func Test_StripScheme(t *testing.T) {
	assert.Equal(t, "/storage/emulated/0/DCIM/a.mp4", StripScheme("file:///storage/emulated/0/DCIM/a.mp4"))
	assert.Equal(t, "/storage/My Video.mp4", StripScheme("file:///storage/My%20Video.mp4"))
	assert.Equal(t, "/plain/path.mp4", StripScheme("/plain/path.mp4"))
}

func Test_ParsePath(t *testing.T) {
	path, err := Parse("file:///data/videos/clip.mp4")

	assert.Nil(t, err)
	assert.Equal(t, LocalDrive, path.Drive)
	assert.Equal(t, "/data/videos/clip.mp4", path.Local())
	assert.Equal(t, "file:///data/videos/clip.mp4", path.URI())
	assert.Equal(t, ".mp4", path.Ext())
}

func Test_ParseTempPath(t *testing.T) {
	local := filepath.Join(environment.GetTempMountPrefix(), "joins", "joined_20240101120000.mp4")

	path, err := Parse(local)

	assert.Nil(t, err)
	assert.Equal(t, TempDrive, path.Drive)
	assert.Equal(t, "joins/joined_20240101120000.mp4", path.Path)
	assert.Equal(t, local, path.Local())
}

func Test_ParseInvalid(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrPathNotValid)

	_, err = Parse("content://media/external/video/1")
	assert.ErrorIs(t, err, ErrPathNotValid)
}

func Test_PathJSON(t *testing.T) {
	p := New(TempDrive, "a/b.mp4")

	data, err := json.Marshal(p)
	assert.Nil(t, err)
	assert.JSONEq(t, `{"Drive":"temp","Path":"a/b.mp4"}`, string(data))

	var back Path
	assert.Nil(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"Drive":"isilon","Path":"x"}`), &back), ErrDriveNotFound)
}
