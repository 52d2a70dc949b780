package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/easel-api/internal/domain"
)

type fakeRemover struct {
	calls int
	err   error
}

func (f *fakeRemover) RemoveBackground(ctx context.Context, image []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append(image, []byte("+cutout")...), nil
}

type fakeEnhancer struct {
	calls int
}

func (f *fakeEnhancer) Enhance(ctx context.Context, image []byte) ([]byte, error) {
	f.calls++
	return append(image, []byte("+enhanced")...), nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
		img.Set(x, 1, color.NRGBA{G: 255, A: 128})
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcess_RunsEnabledStagesInOrder(t *testing.T) {
	remover := &fakeRemover{}
	enhancer := &fakeEnhancer{}
	p := NewProcessor(remover, enhancer)

	var stages []Stage
	out, err := p.Process(context.Background(), testPNG(t), domain.ProcessingSettings{
		RemoveBackground: true,
		Enhance:          true,
	}, func(stage Stage) { stages = append(stages, stage) })

	require.NoError(t, err)
	assert.Equal(t, []Stage{StageBackgroundRemoval, StageEnhancement}, stages)
	assert.Equal(t, 1, remover.calls)
	assert.Equal(t, 1, enhancer.calls)
	assert.True(t, bytes.HasSuffix(out, []byte("+cutout+enhanced")))
}

func TestProcess_NoStagesEnabled(t *testing.T) {
	p := NewProcessor(nil, nil)
	in := testPNG(t)

	out, err := p.Process(context.Background(), in, domain.ProcessingSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProcess_StageErrorPropagates(t *testing.T) {
	boom := errors.New("provider down")
	p := NewProcessor(&fakeRemover{err: boom}, &fakeEnhancer{})

	_, err := p.Process(context.Background(), testPNG(t), domain.ProcessingSettings{
		RemoveBackground: true,
		Enhance:          true,
	}, nil)

	require.ErrorIs(t, err, boom)
}

func TestProcess_CancellationObservedAtStageBoundary(t *testing.T) {
	remover := &fakeRemover{}
	enhancer := &fakeEnhancer{}
	p := NewProcessor(remover, enhancer)

	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Process(ctx, testPNG(t), domain.ProcessingSettings{
		RemoveBackground: true,
		Enhance:          true,
	}, func(stage Stage) {
		if stage == StageBackgroundRemoval {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	// The cancellation lands between stages: removal ran, enhancement did
	// not start.
	assert.Equal(t, 1, remover.calls)
	assert.Equal(t, 0, enhancer.calls)
}

func TestConvert_PNGToJPEG(t *testing.T) {
	out, err := Convert(testPNG(t), domain.FormatJPEG)
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestConvert_SameFormatIsPassthrough(t *testing.T) {
	in := testPNG(t)
	out, err := Convert(in, domain.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestConvert_RejectsUnknownTarget(t *testing.T) {
	_, err := Convert(testPNG(t), domain.OutputFormat("webp"))
	assert.ErrorIs(t, err, domain.ErrInvalidOutputFormat)
}

func TestConvert_RejectsGarbage(t *testing.T) {
	_, err := Convert([]byte("not an image"), domain.FormatJPEG)
	assert.Error(t, err)
}

func TestFiles_WriteTempAndPromote(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := t.TempDir()
	files := NewFiles(tempDir, outputDir)

	execID := uuid.New()
	tempPath, err := files.WriteTemp(execID, "0001", domain.FormatPNG, []byte("png-bytes"))
	require.NoError(t, err)
	assert.FileExists(t, tempPath)

	finalPath, err := files.Promote(tempPath)
	require.NoError(t, err)
	assert.FileExists(t, finalPath)
	assert.NoFileExists(t, tempPath)

	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, files.CleanupTemp(execID))
}

func TestFiles_PromoteKeepsExecutionsApart(t *testing.T) {
	tempDir := t.TempDir()
	outputDir := t.TempDir()
	files := NewFiles(tempDir, outputDir)

	// Same mapping ID across two executions must not share a final path.
	firstExec := uuid.New()
	firstTemp, err := files.WriteTemp(firstExec, "0001", domain.FormatPNG, []byte("first-run"))
	require.NoError(t, err)
	firstFinal, err := files.Promote(firstTemp)
	require.NoError(t, err)

	secondExec := uuid.New()
	secondTemp, err := files.WriteTemp(secondExec, "0001", domain.FormatPNG, []byte("second-run"))
	require.NoError(t, err)
	secondFinal, err := files.Promote(secondTemp)
	require.NoError(t, err)

	assert.NotEqual(t, firstFinal, secondFinal)
	assert.Contains(t, firstFinal, firstExec.String())
	assert.Contains(t, secondFinal, secondExec.String())

	data, err := os.ReadFile(firstFinal)
	require.NoError(t, err)
	assert.Equal(t, "first-run", string(data))

	data, err = os.ReadFile(secondFinal)
	require.NoError(t, err)
	assert.Equal(t, "second-run", string(data))
}
