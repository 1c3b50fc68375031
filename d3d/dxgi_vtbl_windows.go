package d3d

type iDXGIObjectVtbl struct {
	iUnknownVtbl

	SetPrivateData          uintptr
	SetPrivateDataInterface uintptr
	GetPrivateData          uintptr
	GetParent               uintptr
}

type iDXGIDeviceSubObjectVtbl struct {
	iDXGIObjectVtbl

	GetDevice uintptr
}

type iDXGISurfaceVtbl struct {
	iDXGIDeviceSubObjectVtbl

	GetDesc uintptr
	Map     uintptr
	Unmap   uintptr
}

type iDXGIResourceVtbl struct {
	iDXGIDeviceSubObjectVtbl

	GetSharedHandle     uintptr
	GetUsage            uintptr
	SetEvictionPriority uintptr
	GetEvictionPriority uintptr
}

type iDXGIResource1Vtbl struct {
	iDXGIResourceVtbl

	CreateSubresourceSurface uintptr
	CreateSharedHandle       uintptr
}

type iDXGIKeyedMutexVtbl struct {
	iDXGIDeviceSubObjectVtbl

	AcquireSync uintptr
	ReleaseSync uintptr
}
