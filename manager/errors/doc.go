package errors

// The errors package holds the errors returned by the address space manager
// components. Keeping them in their own package lets registry, address and
// allocator errors travel up to the caller unchanged, and lets callers tell
// recoverable failures (bad input, overlap, exhaustion, lost races) from
// terminal ones (permission denied) and from defects (internal faults)
// without importing every component.
