// Package webextension installs and removes browser extensions.
package webextension

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodInstall   = "webExtension.install"
	MethodUninstall = "webExtension.uninstall"
)

// ExtensionData locates the extension to install: an unpacked directory, an
// archive on the remote end's filesystem, or an inline base64 archive.
type ExtensionData interface {
	json.Marshaler
	extensionData()
}

type PathData struct{ Path string }

type ArchivePathData struct{ Path string }

type Base64Data struct{ Value string }

// Archive encodes an in-memory zip archive.
func Archive(zip []byte) Base64Data {
	return Base64Data{Value: base64.StdEncoding.EncodeToString(zip)}
}

func (PathData) extensionData()        {}
func (ArchivePathData) extensionData() {}
func (Base64Data) extensionData()      {}

func (d PathData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Path string `json:"path"`
	}{"path", d.Path})
}

func (d ArchivePathData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Path string `json:"path"`
	}{"archivePath", d.Path})
}

func (d Base64Data) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{"base64", d.Value})
}

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

func (m *Module) Install(ctx context.Context, data ExtensionData) (bidi.ExtensionID, error) {
	switch d := data.(type) {
	case nil:
		return bidi.ExtensionID{}, bidi.InvalidParams(MethodInstall, "extensionData", "is required")
	case PathData:
		if d.Path == "" {
			return bidi.ExtensionID{}, bidi.InvalidParams(MethodInstall, "extensionData.path", "must not be empty")
		}
	case ArchivePathData:
		if d.Path == "" {
			return bidi.ExtensionID{}, bidi.InvalidParams(MethodInstall, "extensionData.path", "must not be empty")
		}
	case Base64Data:
		if d.Value == "" {
			return bidi.ExtensionID{}, bidi.InvalidParams(MethodInstall, "extensionData.value", "must not be empty")
		}
	}

	result, err := bidi.Send[struct {
		Extension bidi.ExtensionID `json:"extension"`
	}](ctx, m.doer, bidi.NewCommand(MethodInstall, struct {
		ExtensionData ExtensionData `json:"extensionData"`
	}{data}))
	if err != nil {
		return bidi.ExtensionID{}, err
	}
	if result.Extension.IsZero() {
		return bidi.ExtensionID{}, &bidi.DecodeError{Method: MethodInstall, Err: bidi.Malformed("InstallResult", "extension", "is missing")}
	}
	return result.Extension, nil
}

func (m *Module) Uninstall(ctx context.Context, id bidi.ExtensionID) error {
	if id.IsZero() {
		return bidi.InvalidParams(MethodUninstall, "extension", "must not be empty")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodUninstall, struct {
		Extension bidi.ExtensionID `json:"extension"`
	}{id}))
}
