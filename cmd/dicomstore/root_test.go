package main

import (
	"bytes"
	"context"
	"go/format"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/config"
	"github.com/caio-sobreiro/dicomstore/dicom"
	"github.com/caio-sobreiro/dicomstore/server"
	"github.com/caio-sobreiro/dicomstore/services"
	"github.com/caio-sobreiro/dicomstore/storage"
	"github.com/caio-sobreiro/dicomstore/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCT(t *testing.T, dir, sopInstance string) string {
	t.Helper()
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPClassUID, dicom.VR_UI, types.CTImageStorage)
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VR_UI, sopInstance)
	ds.SetString(dicom.TagStudyInstanceUID, dicom.VR_UI, "1.2.826.0.1.1")
	ds.SetString(dicom.TagSeriesInstanceUID, dicom.VR_UI, "1.2.826.0.1.2")
	px := &dicom.PixelData{
		Rows:                      2,
		Columns:                   4,
		BitsAllocated:             8,
		BitsStored:                8,
		HighBit:                   7,
		SamplesPerPixel:           1,
		NumberOfFrames:            1,
		PhotometricInterpretation: "MONOCHROME2",
		Native:                    []byte{1, 1, 1, 1, 7, 7, 7, 7},
	}
	px.Apply(ds)
	path := filepath.Join(dir, sopInstance+".dcm")
	require.NoError(t, dicom.WriteFile(path, &dicom.File{
		Meta:    dicom.NewFileMeta(types.CTImageStorage, sopInstance, types.ExplicitVRLittleEndian, "SCU"),
		Dataset: ds,
	}))
	return path
}

func startSCP(t *testing.T, root string) string {
	t.Helper()
	store, err := storage.NewFileStore(root, nil)
	require.NoError(t, err)
	registry := services.NewRegistry(nil)
	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService(nil))
	registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(store))

	srv := server.New("STORESCP", registry)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(srv.Stop)
	return srv.Addr().String()
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dicomstore", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"scp", "send", "echo", "transcode", "negotiate"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"log-level", "log-format"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"--config", filepath.Join(dir, "absent.yaml")}, "failed to read config file"},
		{"unknown key", []string{"--config", write("unknown.yaml", "colour: blue\n")}, "failed to parse YAML"},
		{"invalid value", []string{"--config", write("port.yaml", "port: 0\n")}, "invalid configuration"},
		{"log format", []string{"--log-format", "xml"}, "invalid log format"},
		{"log level", []string{"--log-level", "loud"}, "invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "negotiate", types.CTImageStorage)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigSetsInflateCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dicomstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_inflated_size: 4096\n"), 0o644))
	t.Cleanup(func() { dicom.SetMaxInflatedSize(0) })

	_, err := execute(t, "--config", path, "negotiate", types.CTImageStorage)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), dicom.MaxInflatedSize())
}

func TestNegotiateCommand(t *testing.T) {
	out, err := execute(t, "negotiate", types.CTImageStorage)
	require.NoError(t, err)

	assert.Contains(t, out, "Proposed:")
	assert.Contains(t, out, "Answered:")
	assert.Contains(t, out, "CT Image Storage")
	assert.Contains(t, out, "Explicit VR Little Endian")
	assert.Contains(t, out, "acceptance")
}

func TestTranscodeCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeCT(t, dir, "1.2.826.0.1.3.1")
	out := filepath.Join(dir, "rle.dcm")

	stdout, err := execute(t, "transcode", in, out, "--to", types.RLELossless)
	require.NoError(t, err)
	assert.Contains(t, stdout, "RLE Lossless")

	f, err := dicom.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, types.RLELossless, f.TransferSyntaxUID())
	assert.Equal(t, "1.2.826.0.1.3.1", f.SOPInstanceUID())

	_, err = execute(t, "transcode", in, out, "--to", "1.2.3.4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transfer syntax")
}

func TestEchoCommand(t *testing.T) {
	addr := startSCP(t, t.TempDir())

	out, err := execute(t, "echo", "--address", addr, "--called-ae", "STORESCP")
	require.NoError(t, err)
	assert.Contains(t, out, "C-ECHO STORESCP@"+addr+" succeeded")
}

func TestSendCommand(t *testing.T) {
	root := t.TempDir()
	addr := startSCP(t, root)

	src := t.TempDir()
	writeCT(t, src, "1.2.826.0.1.3.1")
	writeCT(t, src, "1.2.826.0.1.3.2")
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("not dicom"), 0o644))

	out, err := execute(t, "send", "--address", addr, "--called-ae", "STORESCP", "--rate", "0", src)
	require.NoError(t, err)
	assert.Contains(t, out, "2/2 sent")
	assert.Contains(t, out, "total=2 success=2 warning=0 failure=0 remaining=0")

	for _, sop := range []string{"1.2.826.0.1.3.1", "1.2.826.0.1.3.2"} {
		assert.FileExists(t, filepath.Join(root, "1.2.826.0.1.1", "1.2.826.0.1.2", sop+".dcm"))
	}
}

func TestSendCommandNoFiles(t *testing.T) {
	_, err := execute(t, "send", "--address", "127.0.0.1:1", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DICOM files found")
}

func TestRunSCPStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := config.Default()
	cfg.Port = port
	cfg.Discard = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NoError(t, runSCP(ctx, cfg, logger))
}

func TestSendSourceIsFormatted(t *testing.T) {
	src, err := os.ReadFile("send.go")
	require.NoError(t, err)
	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(src))
}
