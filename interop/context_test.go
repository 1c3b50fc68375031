package interop_test

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/interop/interoptest"
)

func openContext(t *testing.T, p *interoptest.Process) *interop.Context {
	t.Helper()
	ctx, err := interop.Open(p)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestOpenWithoutExtendedSharing(t *testing.T) {
	p := interoptest.NewGPU().NewProcess(interoptest.WithoutExtendedSharing())
	ctx, err := interop.Open(p)
	require.Error(t, err)
	assert.Nil(t, ctx)
	assert.ErrorIs(t, err, interop.ErrInteropUnsupported)
	assert.False(t, interop.Retryable(err))
	assert.Equal(t, 0, p.TexturesCreated())
	assert.Equal(t, 0, p.DevicesAlive())
}

func TestOpenWithoutInteropExtension(t *testing.T) {
	p := interoptest.NewGPU().NewProcess(interoptest.WithoutInterop())
	_, err := interop.Open(p)
	assert.ErrorIs(t, err, interop.ErrInteropUnsupported)
	assert.Equal(t, 0, p.TexturesCreated())
	assert.Equal(t, 0, p.DevicesAlive())
}

func TestOpenDeviceCreationError(t *testing.T) {
	boom := errors.New("no adapter")
	p := interoptest.NewGPU().NewProcess(interoptest.WithCreateError(boom))
	_, err := interop.Open(p)
	assert.ErrorIs(t, err, interop.ErrDeviceCreation)
	assert.ErrorIs(t, err, boom)
}

func TestCreateSharedTexture(t *testing.T) {
	ctx := openContext(t, interoptest.NewGPU().NewProcess())

	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 100, Height: 50, Mipmaps: true})
	require.NoError(t, err)
	assert.Equal(t, 100, tex.Width())
	assert.Equal(t, 50, tex.Height())
	assert.Equal(t, uint32(7), tex.MipLevels())
	assert.False(t, tex.Imported())

	spec := tex.Native().(*interoptest.Texture).Spec()
	assert.True(t, spec.SharedNT)
	assert.True(t, spec.KeyedMutex)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, spec.Fill)

	for _, d := range []interop.TextureDesc{
		{Width: 0, Height: 1},
		{Width: 1, Height: -1},
		{Width: interop.MaxTextureDimension + 1, Height: 1},
		{Width: 1, Height: 1, Format: interop.PixelFormat(42)},
	} {
		_, err := ctx.CreateSharedTexture(d)
		assert.ErrorIs(t, err, interop.ErrAllocation, "%+v", d)
	}
}

func TestExport(t *testing.T) {
	p := interoptest.NewGPU().NewProcess()
	ctx := openContext(t, p)
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Zero(t, tex.ShareHandle())

	d, err := ctx.Export(tex)
	require.NoError(t, err)
	assert.Equal(t, p.PID(), d.OwnerProcessID)
	assert.NotZero(t, d.Handle)
	assert.Equal(t, d.Handle, tex.ShareHandle())
	assert.Zero(t, p.GL().Registered(), "export does not register")

	again, err := ctx.Export(tex)
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestRegisterRequiresShareHandle(t *testing.T) {
	ctx := openContext(t, interoptest.NewGPU().NewProcess())
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 8, Height: 8})
	require.NoError(t, err)

	_, err = ctx.Register(tex)
	assert.ErrorIs(t, err, interop.ErrRegistration)

	_, err = ctx.Export(tex)
	require.NoError(t, err)
	b, err := ctx.Register(tex)
	require.NoError(t, err)
	assert.NotZero(t, b.Name())
	assert.Equal(t, interop.AccessReadWrite, b.Access())
	assert.Equal(t, interop.StateUnlocked, b.State())
	assert.Equal(t, interop.SideForeign, b.Side())

	_, err = ctx.Register(tex)
	assert.ErrorIs(t, err, interop.ErrRegistration, "registered twice")

	require.NoError(t, b.Close())
	assert.Equal(t, interop.StateDeregistered, b.State())
	b2, err := ctx.Register(tex)
	require.NoError(t, err)
	assert.NotEqual(t, b.Name(), b2.Name())
}

func TestImport(t *testing.T) {
	gpu := interoptest.NewGPU()
	producer, consumer := gpu.NewProcess(), gpu.NewProcess()
	pctx := openContext(t, producer)
	cctx := openContext(t, consumer)

	tex, err := pctx.CreateSharedTexture(interop.TextureDesc{Width: 64, Height: 32})
	require.NoError(t, err)
	d, err := pctx.Export(tex)
	require.NoError(t, err)

	imp, err := cctx.Import(d)
	require.NoError(t, err)
	assert.True(t, imp.Imported())
	assert.Equal(t, 64, imp.Width())
	assert.Equal(t, 32, imp.Height())
	assert.Equal(t, 1, consumer.ResourcesOpened())
	assert.Equal(t, 1, consumer.OpenHandles())

	_, err = cctx.Export(imp)
	assert.ErrorIs(t, err, interop.ErrExport)

	imp.Release()
	assert.Equal(t, 0, consumer.OpenHandles())
	assert.Equal(t, 1, producer.OpenHandles(), "owner's handle survives the import's release")
}

func TestImportErrors(t *testing.T) {
	gpu := interoptest.NewGPU()
	producer, consumer := gpu.NewProcess(), gpu.NewProcess()
	pctx := openContext(t, producer)
	cctx := openContext(t, consumer)

	_, err := cctx.Import(interop.ShareDescriptor{OwnerProcessID: producer.PID()})
	assert.ErrorIs(t, err, interop.ErrDuplication)

	_, err = cctx.Import(interop.ShareDescriptor{OwnerProcessID: producer.PID(), Handle: 0xdead})
	assert.ErrorIs(t, err, interop.ErrDuplication)
	assert.ErrorIs(t, err, interoptest.ErrInvalidHandle)
	assert.True(t, interop.Retryable(err))

	tex, err := pctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	d, err := pctx.Export(tex)
	require.NoError(t, err)

	producer.Exit()
	_, err = cctx.Import(d)
	assert.ErrorIs(t, err, interop.ErrDuplication)
	assert.ErrorIs(t, err, interoptest.ErrNoProcess)
	assert.Equal(t, 0, consumer.OpenHandles())
}

func TestImportOpenFailureClosesHandle(t *testing.T) {
	gpu := interoptest.NewGPU()
	broken := errors.New("invalid arg")
	producer, consumer := gpu.NewProcess(), gpu.NewProcess(interoptest.WithOpenError(broken))
	pctx := openContext(t, producer)
	cctx := openContext(t, consumer)

	tex, err := pctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	d, err := pctx.Export(tex)
	require.NoError(t, err)

	before := consumer.OpenHandles()
	imp, err := cctx.Import(d)
	assert.Nil(t, imp)
	assert.ErrorIs(t, err, interop.ErrOpenResource)
	assert.ErrorIs(t, err, broken)
	assert.True(t, interop.Retryable(err))
	assert.Equal(t, before, consumer.OpenHandles(), "duplicated handle leaked")
	assert.Equal(t, 0, consumer.ResourcesOpened())
}

func TestCreateSharedTextureExplicitFill(t *testing.T) {
	ctx := openContext(t, interoptest.NewGPU().NewProcess())
	none := color.RGBA{}
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 2, Height: 2, Fill: &none})
	require.NoError(t, err)
	assert.Equal(t, none, tex.Native().(*interoptest.Texture).Spec().Fill)
}

func TestBindingLock(t *testing.T) {
	ctx := openContext(t, interoptest.NewGPU().NewProcess())
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 2, Height: 2})
	require.NoError(t, err)
	_, err = ctx.Export(tex)
	require.NoError(t, err)
	b, err := ctx.Register(tex)
	require.NoError(t, err)

	require.NoError(t, b.Lock())
	assert.Equal(t, interop.StateLocked, b.State())
	assert.ErrorIs(t, b.Lock(), interop.ErrLockHeld)
	require.NoError(t, b.Unlock())
	assert.ErrorIs(t, b.Unlock(), interop.ErrNotLocked)

	require.NoError(t, b.With(func() error {
		assert.Equal(t, interop.StateLocked, b.State())
		return nil
	}))
	assert.Equal(t, interop.StateUnlocked, b.State())

	require.NoError(t, b.ClaimExclusive())
	assert.Equal(t, interop.OwnershipExclusive, b.Ownership())
	require.NoError(t, b.Unlock())
	assert.Equal(t, interop.StateLocked, b.State())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Lock(), interop.ErrDeregistered)
}

func TestLockVisibilityRoundTrip(t *testing.T) {
	gpu := interoptest.NewGPU()
	producer, consumer := gpu.NewProcess(), gpu.NewProcess()
	pctx := openContext(t, producer)
	cctx := openContext(t, consumer)

	tex, err := pctx.CreateSharedTexture(interop.TextureDesc{Width: 16, Height: 16})
	require.NoError(t, err)
	d, err := pctx.Export(tex)
	require.NoError(t, err)
	pb, err := pctx.Register(tex)
	require.NoError(t, err)

	imp, err := cctx.Import(d)
	require.NoError(t, err)
	cb, err := cctx.Register(imp)
	require.NoError(t, err)

	marker := color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}
	assert.ErrorIs(t, consumer.GL().Clear(cb, marker), interoptest.ErrNotLocked)

	require.NoError(t, cb.With(func() error {
		return consumer.GL().Clear(cb, marker)
	}))

	var got color.RGBA
	require.NoError(t, pb.With(func() error {
		got, err = producer.GL().ReadTexel(pb, 3, 9)
		return err
	}))
	assert.Equal(t, marker, got)

	img := image.NewRGBA(tex.Bounds())
	require.NoError(t, tex.Snapshot(img))
	assert.Equal(t, marker, img.RGBAAt(15, 15))
	assert.Equal(t, interop.StateUnlocked, tex.NativeLock().State())
}

func TestLockMutualExclusion(t *testing.T) {
	gpu := interoptest.NewGPU()
	producer, consumer := gpu.NewProcess(), gpu.NewProcess()
	pctx := openContext(t, producer)
	cctx := openContext(t, consumer)

	tex, err := pctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	d, err := pctx.Export(tex)
	require.NoError(t, err)
	imp, err := cctx.Import(d)
	require.NoError(t, err)
	cb, err := cctx.Register(imp)
	require.NoError(t, err)

	native := tex.NativeLock()
	require.NoError(t, native.Lock())

	acquired := make(chan error, 1)
	go func() { acquired <- cb.Lock() }()

	assert.Never(t, func() bool { return len(acquired) > 0 }, 100*time.Millisecond, 5*time.Millisecond,
		"foreign lock must stall while the native side holds the memory")

	require.NoError(t, native.Unlock())
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("foreign lock not acquired after native unlock")
	}

	relocked := make(chan error, 1)
	go func() { relocked <- native.Lock() }()
	assert.Never(t, func() bool { return len(relocked) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, cb.Unlock())
	require.NoError(t, <-relocked)
	require.NoError(t, native.Unlock())
}

func TestExclusiveOwnershipStallsOtherSide(t *testing.T) {
	p := interoptest.NewGPU().NewProcess()
	ctx := openContext(t, p)
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	_, err = ctx.Export(tex)
	require.NoError(t, err)
	b, err := ctx.Register(tex)
	require.NoError(t, err)

	require.NoError(t, b.ClaimExclusive())
	require.NoError(t, b.Unlock())
	require.NoError(t, p.GL().Clear(b, color.RGBA{B: 255, A: 255}))

	done := make(chan error, 1)
	go func() { done <- tex.NativeLock().Lock() }()
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, b.Close())
	require.NoError(t, <-done)
	require.NoError(t, tex.NativeLock().Unlock())
}

func TestContextClose(t *testing.T) {
	p := interoptest.NewGPU().NewProcess()
	ctx, err := interop.Open(p)
	require.NoError(t, err)

	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	_, err = ctx.Export(tex)
	require.NoError(t, err)
	b, err := ctx.Register(tex)
	require.NoError(t, err)
	require.NoError(t, b.Lock())

	require.NoError(t, ctx.Close())
	assert.Equal(t, interop.StateDeregistered, b.State())
	assert.Zero(t, p.GL().Registered())
	assert.Zero(t, p.OpenHandles())
	assert.Zero(t, p.DevicesAlive())
	assert.True(t, tex.Native().(*interoptest.Texture).Released())

	_, err = ctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	assert.ErrorIs(t, err, interop.ErrClosed)
	require.NoError(t, ctx.Close())
}
