package webextension_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/webextension"
)

func TestInstallVariants(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(webextension.MethodInstall, map[string]any{"extension": "ext-1"})

	m := webextension.New(client)
	for _, tt := range []struct {
		data webextension.ExtensionData
		want string
	}{
		{webextension.PathData{Path: "/ext/unpacked"}, `{"extensionData":{"type":"path","path":"/ext/unpacked"}}`},
		{webextension.ArchivePathData{Path: "/ext/a.zip"}, `{"extensionData":{"type":"archivePath","path":"/ext/a.zip"}}`},
		{webextension.Archive([]byte("PK")), `{"extensionData":{"type":"base64","value":"UEs="}}`},
	} {
		id, err := m.Install(context.Background(), tt.data)
		require.NoError(t, err)
		assert.Equal(t, "ext-1", id.String())

		cmds := server.Commands()
		assert.JSONEq(t, tt.want, string(cmds[len(cmds)-1].Params))
	}
}

func TestInstallRejectsEmptyData(t *testing.T) {
	client, server := biditest.NewClient(t)
	m := webextension.New(client)

	for _, data := range []webextension.ExtensionData{nil, webextension.PathData{}, webextension.ArchivePathData{}, webextension.Base64Data{}} {
		_, err := m.Install(context.Background(), data)
		assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	}
	assert.ErrorIs(t, m.Uninstall(context.Background(), bidi.ExtensionID{}), bidi.ErrInvalidParams)
	assert.Empty(t, server.Commands())
}

func TestUninstallUnknownExtension(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleError(webextension.MethodUninstall, "no such web extension", "ext-9")

	err := webextension.New(client).Uninstall(context.Background(), bidi.Must(bidi.NewExtensionID("ext-9")))
	var remote *bidi.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "no such web extension", remote.Code)
	assert.Equal(t, webextension.MethodUninstall, remote.Method)
}
