package paths

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/orsinium-labs/enum"
)

const FileScheme = "file://"

type Drive enum.Member[string]

//goland:noinspection GoMixedReceiverTypes
func (d Drive) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (d *Drive) UnmarshalJSON(value []byte) error {
	var stringValue string
	err := json.Unmarshal(value, &stringValue)
	if err != nil {
		return err
	}
	if stringValue == "" {
		*d = Drive{}
		return nil
	}
	drive := Drives.Parse(stringValue)
	if drive == nil {
		return ErrDriveNotFound
	}
	*d = *drive
	return nil
}

var (
	LocalDrive       = Drive{Value: "local"}
	TempDrive        = Drive{Value: "temp"}
	Drives           = enum.New(LocalDrive, TempDrive)
	ErrDriveNotFound = merry.Sentinel("drive not found")
	ErrPathNotValid  = merry.Sentinel("path not valid")
)

type Path struct {
	Drive Drive
	Path  string
}

func (p Path) Dir() Path {
	return Path{
		Drive: p.Drive,
		Path:  filepath.Dir(p.Path),
	}
}

// Local returns the path in a local unix style path.
func (p Path) Local() string {
	return filepath.Join(drivePrefix(p.Drive), p.Path)
}

// URI returns the path with the file scheme, the form mobile clients hand over.
func (p Path) URI() string {
	return FileScheme + p.Local()
}

// Ext returns the file extension
func (p Path) Ext() string {
	return filepath.Ext(p.Path)
}

func (p Path) Base() string {
	return filepath.Base(p.Path)
}

func (p Path) Append(path string) Path {
	return Path{
		Drive: p.Drive,
		Path:  filepath.Clean(filepath.Join(p.Path, path)),
	}
}

func (p Path) IsZero() bool {
	return p.Path == ""
}

func drivePrefix(d Drive) string {
	switch d {
	case TempDrive:
		return environment.GetTempMountPrefix()
	}
	return "/"
}

// StripScheme removes a file:// prefix. Container readers expect bare filesystem paths.
func StripScheme(uri string) string {
	if !strings.HasPrefix(uri, FileScheme) {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(uri, FileScheme)
	}
	return u.Path
}

// Parse accepts a bare path or a file:// URI. Anything under the temp prefix is placed on the TempDrive.
func Parse(path string) (Path, error) {
	if path == "" {
		return Path{}, ErrPathNotValid
	}
	if strings.Contains(path, "://") && !strings.HasPrefix(path, FileScheme) {
		return Path{}, merry.Wrap(ErrPathNotValid, merry.WithMessagef("unsupported scheme: %s", path))
	}

	local, err := filepath.Abs(StripScheme(path))
	if err != nil {
		return Path{}, merry.Wrap(ErrPathNotValid, merry.WithCause(err))
	}

	tempPrefix := filepath.Clean(environment.GetTempMountPrefix()) + string(filepath.Separator)
	if strings.HasPrefix(local, tempPrefix) {
		return Path{
			Drive: TempDrive,
			Path:  strings.TrimPrefix(local, tempPrefix),
		}, nil
	}

	return Path{
		Drive: LocalDrive,
		Path:  strings.TrimPrefix(local, "/"),
	}, nil
}

func MustParse(path string) Path {
	p, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return p
}

func New(drive Drive, path string) Path {
	return Path{
		Drive: drive,
		Path:  path,
	}
}
