package interop

// Binding makes a Texture addressable through the foreign API. Name is the
// foreign object name (a GL texture name) bound to the texture's memory for
// as long as the binding is open.
type Binding struct {
	lock   *Lock
	ctx    *Context
	tex    *Texture
	name   uint32
	token  LockHandle
	access AccessMode
}

func (b *Binding) Texture() *Texture  { return b.tex }
func (b *Binding) Name() uint32       { return b.name }
func (b *Binding) Token() LockHandle  { return b.token }
func (b *Binding) Access() AccessMode { return b.access }

func (b *Binding) Side() Side                 { return b.lock.Side() }
func (b *Binding) State() LockState           { return b.lock.State() }
func (b *Binding) Ownership() Ownership       { return b.lock.Ownership() }
func (b *Binding) Lock() error                { return b.lock.Lock() }
func (b *Binding) Unlock() error              { return b.lock.Unlock() }
func (b *Binding) ClaimExclusive() error      { return b.lock.ClaimExclusive() }
func (b *Binding) With(fn func() error) error { return b.lock.With(fn) }

// Close unlocks the memory if held, deregisters it from the foreign API and
// deletes the foreign object name.
func (b *Binding) Close() error {
	if b.State() == StateDeregistered {
		return nil
	}
	err := b.lock.close()
	b.ctx.foreign.DeleteTexture(b.name)
	b.ctx.unbind(b)
	return err
}

type foreignToken struct {
	api    ForeignAPI
	device InteropDevice
	token  LockHandle
}

func (f foreignToken) lock() error    { return f.api.Lock(f.device, f.token) }
func (f foreignToken) unlock() error  { return f.api.Unlock(f.device, f.token) }
func (f foreignToken) release() error { return f.api.Unregister(f.device, f.token) }
