package engine

// Export names of the emulator core.
const (
	ExportVersion     = "version"
	ExportPacketWrite = "packet_write"
	ExportPacketRead  = "packet_read"
	ExportCPUStep     = "cpu_step"
	ExportCPUReset    = "cpu_reset"
	ExportErasablePtr = "get_erasable_ptr"
	ExportSetFixed    = "set_fixed"
	ExportMalloc      = "malloc"
	ExportFree        = "free"
)

// Start functions. Only the reactor initializer runs during instantiation.
const (
	startInitialize = "_initialize"
	startCommand    = "_start"
)

// Import names of the shared memory.
const (
	EnvModule     = "env"
	MemoryName    = "memory"
	envHostModule = "agc:env-host"
)
