package hooking

// Hook positions triggered by the virtual memory manager.
var (
	HookPosPageFault   = &HookPos{Name: "PageFault"}
	HookPosPageIn      = &HookPos{Name: "PageIn"}
	HookPosPageOut     = &HookPos{Name: "PageOut"}
	HookPosFrameEvict  = &HookPos{Name: "FrameEvict"}
	HookPosStackGrowth = &HookPos{Name: "StackGrowth"}
	HookPosMmap        = &HookPos{Name: "Mmap"}
	HookPosMunmap      = &HookPos{Name: "Munmap"}
)

// AllVMHookPoses lists every position above, in a stable order.
var AllVMHookPoses = []*HookPos{
	HookPosPageFault,
	HookPosPageIn,
	HookPosPageOut,
	HookPosFrameEvict,
	HookPosStackGrowth,
	HookPosMmap,
	HookPosMunmap,
}

// A VMEvent is the item carried by the hook context of a virtual memory hook.
type VMEvent struct {
	PID   uint32
	VAddr uint64
	Kind  string
	What  string
	OK    bool
}
