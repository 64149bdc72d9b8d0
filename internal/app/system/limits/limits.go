// internal/app/system/limits/limits.go
package limits

// Request and transfer size limits.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size for JSON request bodies
	// (group creation, join validation).
	MaxJSONBody = 64 << 10 // 64 KB

	// DefaultMaxUploadSize is the largest file accepted over either upload
	// path unless configured otherwise.
	DefaultMaxUploadSize = 100 << 20 // 100 MB

	// MultipartMemory is how much of a multipart upload is held in memory
	// before spilling to temporary files.
	MultipartMemory = 8 << 20 // 8 MB

	// MultipartOverhead allows for boundaries and part headers on top of
	// the file itself.
	MultipartOverhead = 1 << 20 // 1 MB

	// ChunkSize is the fragment size the bundled browser client sends.
	ChunkSize = 512 << 10 // 512 KB

	// MinChunkSize bounds how finely a chunked upload may be split:
	// totalChunks may not exceed ceil(totalSize / MinChunkSize).
	MinChunkSize = 1 << 10 // 1 KB

	// DefaultUploadsPerConn caps chunked uploads in progress on one
	// realtime connection.
	DefaultUploadsPerConn = 4

	// DefaultUploadBuffer caps the bytes reserved by all chunked uploads
	// in progress. Each upload reserves its full size on its first chunk.
	DefaultUploadBuffer = 512 << 20 // 512 MB

	// MaxFrameSize bounds one realtime frame. A base64-encoded ChunkSize
	// fragment plus its JSON envelope fits with room to spare.
	MaxFrameSize = 2 << 20 // 2 MB

	// DefaultMaxGroupMembers caps the capacity a group can be created with.
	DefaultMaxGroupMembers = 100

	// JoinBurst is how many join frames a realtime connection may send
	// back to back before JoinsPerSecond applies.
	JoinBurst = 5
)

// JoinsPerSecond refills a realtime connection's join allowance.
const JoinsPerSecond = 0.5
